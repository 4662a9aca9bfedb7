package emu

// PLIC register map (subset of the SiFive layout): source priorities at the
// base, the pending word at 0x1000, one enable word per context at 0x2000
// with 0x80 stride, threshold and claim/complete per context at 0x200000
// with 0x1000 stride. One context per hart, 31 usable sources (1..31).
const (
	PlicSize          = 0x400000
	plicPriorityBase  = 0x0
	plicPendingOff    = 0x1000
	plicEnableBase    = 0x2000
	plicEnableStride  = 0x80
	plicContextBase   = 0x200000
	plicContextStride = 0x1000

	PlicMaxSources = 32
)

// PLIC aggregates external interrupt lines and presents the highest-priority
// pending, enabled source above the context threshold for claiming. Raising
// and claiming are the only cross-hart channels besides memory itself.
type PLIC struct {
	priority  [PlicMaxSources]uint32
	pending   uint32
	level     uint32 // raw line state from devices
	claimed   uint32
	enable    []uint32
	threshold []uint32
}

func NewPLIC(harts int) *PLIC {
	return &PLIC{
		enable:    make([]uint32, harts),
		threshold: make([]uint32, harts),
	}
}

func (p *PLIC) Read(addr uint64, size uint64) (uint64, *Trap) {
	if size != 4 {
		return 0, loadFault(addr)
	}
	switch {
	case addr < PlicMaxSources*4:
		return uint64(p.priority[addr/4]), nil
	case addr == plicPendingOff:
		return uint64(p.pending), nil
	case p.enableContext(addr) >= 0:
		return uint64(p.enable[p.enableContext(addr)]), nil
	default:
		ctx, off, ok := p.contextReg(addr)
		if !ok {
			return 0, loadFault(addr)
		}
		if off == 0 {
			return uint64(p.threshold[ctx]), nil
		}
		return uint64(p.claim(ctx)), nil
	}
}

func (p *PLIC) Write(addr uint64, size uint64, v uint64) *Trap {
	if size != 4 {
		return storeFault(addr)
	}
	switch {
	case addr < PlicMaxSources*4:
		p.priority[addr/4] = uint32(v)
	case addr == plicPendingOff:
		// pending is set by hardware lines, not software
	case p.enableContext(addr) >= 0:
		p.enable[p.enableContext(addr)] = uint32(v)
	default:
		ctx, off, ok := p.contextReg(addr)
		if !ok {
			return storeFault(addr)
		}
		if off == 0 {
			p.threshold[ctx] = uint32(v)
		} else {
			p.complete(ctx, uint32(v))
		}
	}
	return nil
}

func (p *PLIC) enableContext(addr uint64) int {
	if addr < plicEnableBase || addr >= plicEnableBase+uint64(len(p.enable))*plicEnableStride {
		return -1
	}
	if (addr-plicEnableBase)%plicEnableStride != 0 {
		return -1
	}
	return int((addr - plicEnableBase) / plicEnableStride)
}

func (p *PLIC) contextReg(addr uint64) (ctx int, off uint64, ok bool) {
	if addr < plicContextBase {
		return 0, 0, false
	}
	ctx = int((addr - plicContextBase) / plicContextStride)
	off = (addr - plicContextBase) % plicContextStride
	if ctx >= len(p.threshold) || (off != 0 && off != 4) {
		return 0, 0, false
	}
	return ctx, off, true
}

// Raise drives one external source line. A rising edge latches the source
// pending until it is claimed and completed.
func (p *PLIC) Raise(source int, high bool) {
	bit := uint32(1) << source
	if high {
		if p.level&bit == 0 && p.claimed&bit == 0 {
			p.pending |= bit
		}
		p.level |= bit
	} else {
		p.level &^= bit
	}
}

// claim hands out the highest-priority pending enabled source and clears its
// pending bit; zero means nothing to claim.
func (p *PLIC) claim(ctx int) uint32 {
	best, bestPrio := uint32(0), uint32(0)
	for s := uint32(1); s < PlicMaxSources; s++ {
		bit := uint32(1) << s
		if p.pending&bit != 0 && p.enable[ctx]&bit != 0 && p.priority[s] > bestPrio {
			best, bestPrio = s, p.priority[s]
		}
	}
	if best != 0 {
		p.pending &^= 1 << best
		p.claimed |= 1 << best
	}
	return best
}

// complete retires a claimed source; if its line is still high it re-pends.
func (p *PLIC) complete(ctx int, source uint32) {
	bit := uint32(1) << source
	p.claimed &^= bit
	if p.level&bit != 0 {
		p.pending |= bit
	}
}

// ExternalPending reports the MEIP line of one context: any pending enabled
// source with priority above the context threshold.
func (p *PLIC) ExternalPending(ctx uint64) bool {
	for s := uint32(1); s < PlicMaxSources; s++ {
		bit := uint32(1) << s
		if p.pending&bit != 0 && p.enable[ctx]&bit != 0 && p.priority[s] > p.threshold[ctx] {
			return true
		}
	}
	return false
}
