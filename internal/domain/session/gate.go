package session

import "sync"

// Gate is the push-to-talk gate: raw mic frames reach the capture
// buffer only while the gate is open. The arbiter decides when it may
// open; the gate itself just holds the buffer.
type Gate struct {
	mu     sync.Mutex
	open   bool
	buffer []byte
}

// Open starts accepting frames into a fresh buffer.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = true
	g.buffer = g.buffer[:0]
}

// Close stops accepting frames and returns the accumulated audio.
func (g *Gate) Close() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = false
	out := make([]byte, len(g.buffer))
	copy(out, g.buffer)
	g.buffer = g.buffer[:0]
	return out
}

// Feed appends a frame if the gate is open; closed-gate frames are
// dropped on the floor.
func (g *Gate) Feed(frame []byte) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return false
	}
	g.buffer = append(g.buffer, frame...)
	return true
}

// IsOpen reports whether frames are currently accepted.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}
