package emu

import "fmt"

// ROM is read-only bus-mapped storage; stores fault back to the guest.
type ROM struct {
	data []byte
}

func NewROM(data []byte) *ROM {
	d := make([]byte, len(data))
	copy(d, data)
	return &ROM{data: d}
}

func (r *ROM) Read(addr uint64, size uint64) (uint64, *Trap) {
	if addr+size > uint64(len(r.data)) {
		return 0, loadFault(addr)
	}
	return leRead(r.data[addr:], size), nil
}

func (r *ROM) Write(addr uint64, size uint64, v uint64) *Trap {
	return storeFault(addr)
}

func errRange(addr, n, limit uint64) error {
	return fmt.Errorf("range %#x+%#x exceeds storage size %#x", addr, n, limit)
}
