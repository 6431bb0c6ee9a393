package audit

import (
	"context"
	"errors"
)

// FanoutSink writes to every child sink. A child failure does not stop
// the remaining writes; the joined error is reported once.
type FanoutSink struct {
	sinks []Sink
}

func NewFanoutSink(sinks ...Sink) *FanoutSink {
	return &FanoutSink{sinks: sinks}
}

func (s *FanoutSink) Write(ctx context.Context, event Event) error {
	var errs []error
	for _, child := range s.sinks {
		if err := child.Write(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *FanoutSink) Close() error {
	var errs []error
	for _, child := range s.sinks {
		if err := child.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
