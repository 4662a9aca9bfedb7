package emu

import (
	"fmt"
	"sync"
)

// Device is the uniform capability of everything mapped on the bus.
// Addresses are relative to the region base; size is 1, 2, 4 or 8 bytes.
// A returned trap has its Value rewritten by the bus to the absolute address.
type Device interface {
	Read(addr uint64, size uint64) (uint64, *Trap)
	Write(addr uint64, size uint64, v uint64) *Trap
}

type region struct {
	base uint64
	size uint64
	dev  Device
}

// Bus routes physical addresses to devices and owns the cross-hart pieces of
// the memory model: every access holds the bus lock, so no hart ever observes
// a torn word from another hart's store, and an AMO's read-modify-write pair
// is indivisible. The LR/SC reservation registry lives here too: any store
// through the bus invalidates overlapping reservations of every hart.
type Bus struct {
	regions []region

	mu sync.Mutex

	resMu sync.Mutex
	res   map[uint64]uint64 // hart id -> reserved address
}

func NewBus() *Bus {
	return &Bus{res: make(map[uint64]uint64)}
}

// Map adds a device region. Regions must not overlap; a bad memory map is a
// setup defect, not guest behavior, so overlap is a host-level error.
func (b *Bus) Map(base, size uint64, dev Device) error {
	for _, r := range b.regions {
		if base < r.base+r.size && r.base < base+size {
			return fmt.Errorf("region %x-%x overlaps existing %x-%x", base, base+size, r.base, r.base+r.size)
		}
	}
	b.regions = append(b.regions, region{base: base, size: size, dev: dev})
	return nil
}

func (b *Bus) resolve(addr uint64) (region, bool) {
	for _, r := range b.regions {
		if addr >= r.base && addr-r.base < r.size {
			return r, true
		}
	}
	return region{}, false
}

func (b *Bus) Read(addr uint64, size uint64) (uint64, *Trap) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read(addr, size)
}

func (b *Bus) Write(addr uint64, size uint64, v uint64) *Trap {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(addr, size, v)
}

// RMW performs one atomic read-modify-write for AMO instructions: no other
// hart's access lands between the load and the store.
func (b *Bus) RMW(addr uint64, size uint64, fn func(old uint64) uint64) (uint64, *Trap) {
	b.mu.Lock()
	defer b.mu.Unlock()
	old, t := b.read(addr, size)
	if t != nil {
		return 0, t
	}
	if t := b.write(addr, size, fn(old)); t != nil {
		return 0, t
	}
	return old, nil
}

func (b *Bus) read(addr uint64, size uint64) (uint64, *Trap) {
	r, ok := b.resolve(addr)
	if !ok {
		return 0, loadFault(addr)
	}
	v, t := r.dev.Read(addr-r.base, size)
	if t != nil {
		t.Value = addr
	}
	return v, t
}

func (b *Bus) write(addr uint64, size uint64, v uint64) *Trap {
	r, ok := b.resolve(addr)
	if !ok {
		return storeFault(addr)
	}
	if t := r.dev.Write(addr-r.base, size, v); t != nil {
		t.Value = addr
		return t
	}
	b.invalidateReservations(addr, size)
	return nil
}

// Reserve records a load-reservation for a hart, replacing any prior one.
func (b *Bus) Reserve(hartID, addr uint64) {
	b.resMu.Lock()
	defer b.resMu.Unlock()
	b.res[hartID] = addr
}

// StoreConditional writes only if the hart's reservation is still valid for
// exactly this address, with no window for another hart's store between the
// check and the write. SC always consumes the reservation, success or not.
func (b *Bus) StoreConditional(hartID, addr, size, v uint64) (bool, *Trap) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resMu.Lock()
	got, ok := b.res[hartID]
	delete(b.res, hartID)
	b.resMu.Unlock()

	if !ok || got != addr {
		return false, nil
	}
	if t := b.write(addr, size, v); t != nil {
		return false, t
	}
	return true, nil
}

// invalidateReservations drops every hart's reservation that overlaps the
// written range, regardless of which hart performed the store.
func (b *Bus) invalidateReservations(addr, size uint64) {
	b.resMu.Lock()
	defer b.resMu.Unlock()
	for hart, res := range b.res {
		if res < addr+size && addr < res+8 {
			delete(b.res, hart)
		}
	}
}
