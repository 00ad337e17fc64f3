package sim

import "sync"

// Memory is a register-file target: the first written byte sets the register
// pointer, further written bytes are stored from there, and reads continue
// from the pointer. The pointer auto-increments and wraps at 256.
type Memory struct {
	mu   sync.Mutex
	regs [256]byte
	ptr  uint8
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Tx(w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(w) > 0 {
		m.ptr = w[0]
		for _, b := range w[1:] {
			m.regs[m.ptr] = b
			m.ptr++
		}
	}
	for i := range r {
		r[i] = m.regs[m.ptr]
		m.ptr++
	}
	return nil
}

// Set writes registers directly.
func (m *Memory) Set(reg uint8, b ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range b {
		m.regs[reg] = v
		reg++
	}
}

// Get reads n registers directly.
func (m *Memory) Get(reg uint8, n int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, n)
	for i := range out {
		out[i] = m.regs[reg]
		reg++
	}
	return out
}

// TargetFunc adapts a function to Target.
type TargetFunc func(w, r []byte) error

func (f TargetFunc) Tx(w, r []byte) error { return f(w, r) }
