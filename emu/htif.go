package emu

// HTIF is the host-target interface halt port test binaries write their exit
// status to (tohost convention): bit 0 set means done, the remaining bits are
// the exit code. Reads return zero (fromhost is not modeled).
type HTIF struct {
	onHalt func(code uint64)
}

func NewHTIF(onHalt func(code uint64)) *HTIF {
	return &HTIF{onHalt: onHalt}
}

func (h *HTIF) Read(addr uint64, size uint64) (uint64, *Trap) {
	return 0, nil
}

func (h *HTIF) Write(addr uint64, size uint64, v uint64) *Trap {
	if addr == 0 && v&1 == 1 && h.onHalt != nil {
		h.onHalt(v >> 1)
	}
	return nil
}
