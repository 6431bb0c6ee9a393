package observability

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Safety counters exposed by the controller. Names are part of the
// operator contract; the HTTP API reports them verbatim.
const (
	CounterSpeakerSafeEvents      = "speaker_safe_events_count"
	CounterBargeInAttemptsBlocked = "barge_in_attempts_blocked"
	CounterPHIReadbackDenials     = "phi_readback_denials_count"
	CounterProviderModeSwitches   = "provider_mode_switches_count"
	CounterConfirmationExpired    = "confirmation_expired_count"
)

var (
	countersMu sync.RWMutex
	counters   = map[string]*atomic.Int64{}
)

func counter(name string) *atomic.Int64 {
	countersMu.RLock()
	c, ok := counters[name]
	countersMu.RUnlock()
	if ok {
		return c
	}

	countersMu.Lock()
	defer countersMu.Unlock()
	if c, ok = counters[name]; ok {
		return c
	}
	c = &atomic.Int64{}
	counters[name] = c
	return c
}

// IncrCounter adds one to a named counter, creating it on first use.
func IncrCounter(name string) {
	counter(name).Add(1)
}

// CounterValue returns the current value of a named counter.
func CounterValue(name string) int64 {
	return counter(name).Load()
}

// Snapshot returns all counters sorted by name.
func Snapshot() map[string]int64 {
	countersMu.RLock()
	defer countersMu.RUnlock()

	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]int64, len(names))
	for _, name := range names {
		out[name] = counters[name].Load()
	}
	return out
}

// ResetCounters clears all counters; test use only.
func ResetCounters() {
	countersMu.Lock()
	defer countersMu.Unlock()
	counters = map[string]*atomic.Int64{}
}
