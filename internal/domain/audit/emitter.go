package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinivoice-server-go/internal/platform/logging"
)

// Emitter is the single write path for audit events. Emit is
// synchronous and holds a lock for the duration of the sink write, so
// events reach the sink in the exact order safety decisions were made.
// A sink failure is reported operationally and never vetoes the
// decision that produced the event.
type Emitter struct {
	mu     sync.Mutex
	seq    uint64
	sink   Sink
	logger *logging.Logger
	now    func() time.Time
	errs   chan error
}

func NewEmitter(sink Sink, logger *logging.Logger) *Emitter {
	return &Emitter{
		sink:   sink,
		logger: logger,
		now:    time.Now,
		errs:   make(chan error, 64),
	}
}

// Emit assigns identity and sequence to the event, redacts its
// payload, and writes it. The returned error is operational only;
// callers log it and move on.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	event.Seq = e.seq
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.At.IsZero() {
		event.At = e.now().UTC()
	}
	event.Payload = RedactPayload(event.Payload)

	if err := e.sink.Write(ctx, event); err != nil {
		if e.logger != nil {
			e.logger.ErrorTag("AUDIT", "sink write failed type=%s session=%s: %v",
				event.Type, event.SessionID, err)
		}
		select {
		case e.errs <- err:
		default:
		}
		return err
	}
	return nil
}

// Errs exposes sink failures for the operator status endpoint. The
// channel drops when full.
func (e *Emitter) Errs() <-chan error {
	return e.errs
}

func (e *Emitter) Close() error {
	return e.sink.Close()
}
