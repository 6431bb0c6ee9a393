package audit

import (
	"context"
	"fmt"
	"strings"

	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/logging"
	"clinivoice-server-go/internal/platform/storage"
)

// Sink persists audit events. Write is called under the emitter's
// lock, one event at a time, in sequence order.
type Sink interface {
	Write(ctx context.Context, event Event) error
	Close() error
}

// NewSink builds the sink named in cfg. A comma-separated value such
// as "sqlite,redis" fans every event out to each named sink. db may be
// nil for non-sqlite sinks.
func NewSink(cfg config.AuditConfig, db *storage.Database, logger *logging.Logger) (Sink, error) {
	names := strings.Split(cfg.Sink, ",")
	sinks := make([]Sink, 0, len(names))
	for _, name := range names {
		child, err := newNamedSink(strings.TrimSpace(name), cfg, db, logger)
		if err != nil {
			for _, built := range sinks {
				_ = built.Close()
			}
			return nil, err
		}
		sinks = append(sinks, child)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return NewFanoutSink(sinks...), nil
}

func newNamedSink(name string, cfg config.AuditConfig, db *storage.Database, logger *logging.Logger) (Sink, error) {
	switch name {
	case "", "sqlite":
		if db == nil {
			return nil, fmt.Errorf("sqlite audit sink requires a database")
		}
		return NewSQLiteSink(db)
	case "redis":
		return NewRedisSink(cfg.Redis, logger)
	case "memory":
		return NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("unknown audit sink %q", name)
	}
}
