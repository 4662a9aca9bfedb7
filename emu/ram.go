package emu

import (
	"encoding/binary"
)

// RAM is a flat little-endian byte arena. The machine owns it and seeds the
// program image and DTB into it at boot; at runtime all access goes through
// the bus, whose lock provides the cross-hart atomicity.
type RAM struct {
	data []byte
}

func NewRAM(size uint64) *RAM {
	return &RAM{data: make([]byte, size)}
}

func (r *RAM) Size() uint64 {
	return uint64(len(r.data))
}

func (r *RAM) Read(addr uint64, size uint64) (uint64, *Trap) {
	if addr+size > uint64(len(r.data)) {
		return 0, loadFault(addr)
	}
	return leRead(r.data[addr:], size), nil
}

func (r *RAM) Write(addr uint64, size uint64, v uint64) *Trap {
	if addr+size > uint64(len(r.data)) {
		return storeFault(addr)
	}
	leWrite(r.data[addr:], size, v)
	return nil
}

// SetRange copies a boot-time blob (program image, DTB) into the arena.
func (r *RAM) SetRange(addr uint64, data []byte) error {
	if addr+uint64(len(data)) > uint64(len(r.data)) {
		return errRange(addr, uint64(len(data)), uint64(len(r.data)))
	}
	copy(r.data[addr:], data)
	return nil
}

func leRead(b []byte, size uint64) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func leWrite(b []byte, size uint64, v uint64) {
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}
