package emu

// CLINT register offsets (SiFive layout): per-hart msip words at the base,
// per-hart mtimecmp doublewords at 0x4000, the shared mtime at 0xBFF8.
const (
	ClintSize        = 0x10000
	clintMsipBase    = 0x0
	clintTimecmpBase = 0x4000
	clintTimeOff     = 0xBFF8
)

// CLINT is the core-local interruptor: the machine timer and the per-hart
// software interrupt ports. mtime advances once per machine tick rather than
// from host wall time, keeping runs deterministic. Interrupt lines are pulled
// by the machine after each tick, under the bus lock.
type CLINT struct {
	msip     []uint32
	mtimecmp []uint64
	mtime    uint64
}

func NewCLINT(harts int) *CLINT {
	c := &CLINT{
		msip:     make([]uint32, harts),
		mtimecmp: make([]uint64, harts),
	}
	for i := range c.mtimecmp {
		c.mtimecmp[i] = ^uint64(0) // no timer armed at reset
	}
	return c
}

func (c *CLINT) Read(addr uint64, size uint64) (uint64, *Trap) {
	reg, off, ok := c.load(addr)
	if !ok {
		return 0, loadFault(addr)
	}
	return reg >> (8 * off) & sizeMask(size), nil
}

func (c *CLINT) Write(addr uint64, size uint64, v uint64) *Trap {
	reg, off, ok := c.load(addr)
	if !ok {
		return storeFault(addr)
	}
	mask := sizeMask(size) << (8 * off)
	c.store(addr, reg&^mask|v<<(8*off)&mask)
	return nil
}

// load maps an offset to its containing 64-bit register value and the byte
// offset within it, so 1/2/4-byte accesses to either half just work.
func (c *CLINT) load(addr uint64) (uint64, uint64, bool) {
	switch {
	case addr >= clintTimeOff && addr < clintTimeOff+8:
		return c.mtime, addr - clintTimeOff, true
	case addr >= clintTimecmpBase && addr < clintTimecmpBase+8*uint64(len(c.mtimecmp)):
		i := (addr - clintTimecmpBase) / 8
		return c.mtimecmp[i], (addr - clintTimecmpBase) % 8, true
	case addr < 4*uint64(len(c.msip)):
		return uint64(c.msip[addr/4]), addr % 4, true
	}
	return 0, 0, false
}

func (c *CLINT) store(addr uint64, v uint64) {
	switch {
	case addr >= clintTimeOff:
		c.mtime = v
	case addr >= clintTimecmpBase:
		c.mtimecmp[(addr-clintTimecmpBase)/8] = v
	default:
		// only bit 0 of each msip word is defined
		c.msip[addr/4] = uint32(v) & 1
	}
}

func sizeMask(size uint64) uint64 {
	if size >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*size) - 1
}

// Tick advances mtime by n cycles.
func (c *CLINT) Tick(n uint64) {
	c.mtime += n
}

func (c *CLINT) Time() uint64 {
	return c.mtime
}

// TimerPending reports the MTIP line of one hart: mtime >= mtimecmp.
func (c *CLINT) TimerPending(hart uint64) bool {
	return c.mtime >= c.mtimecmp[hart]
}

// SoftwarePending reports the MSIP line of one hart.
func (c *CLINT) SoftwarePending(hart uint64) bool {
	return c.msip[hart]&1 != 0
}
