package action

import "context"

// Executor runs a confirmed payload against the clinical backend. It
// is only ever invoked after a confirmation reaches Confirmed status.
type Executor interface {
	Execute(ctx context.Context, payload Payload) (Result, error)
}
