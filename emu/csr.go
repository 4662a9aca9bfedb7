package emu

import (
	"github.com/hartlab/rvemu/riscv"
)

// CSR is the per-hart control-and-status register bank, machine-mode profile.
// Access control follows the standard address layout: bits [9:8] give the
// minimum privilege, bits [11:10] == 0b11 marks the read-only space.
// Unimplemented registers trap with illegal-instruction rather than reading
// as zero, so guests cannot silently depend on absent state.
type CSR struct {
	regs [4096]uint64
	xlen uint64

	// timeFn supplies the value of the unprivileged `time` shadow CSR,
	// sourced from the CLINT's mtime by the machine.
	timeFn func() uint64
}

func NewCSR(xlen, hartID uint64) *CSR {
	c := &CSR{xlen: xlen}

	mxl := uint64(2)
	if xlen == 32 {
		mxl = 1
	}
	c.regs[riscv.CSRMisa] = mxl<<(xlen-2) |
		riscv.MisaExtI | riscv.MisaExtM | riscv.MisaExtA | riscv.MisaExtC
	c.regs[riscv.CSRMVendorID] = 0 // non-commercial implementation
	c.regs[riscv.CSRMArchID] = 0
	c.regs[riscv.CSRMImpID] = 1
	c.regs[riscv.CSRMHartID] = hartID
	return c
}

// Read checks privilege and existence, then returns the register value.
func (c *CSR) Read(num uint32, priv uint64) (uint64, *Trap) {
	if t := c.check(num, priv, false); t != nil {
		return 0, t
	}
	return c.read(num), nil
}

// Write checks privilege, existence and writability, masks read-only bits,
// and stores. Read-only fields inside writable registers are silently masked,
// never trapped.
func (c *CSR) Write(num uint32, v uint64, priv uint64) *Trap {
	if t := c.check(num, priv, true); t != nil {
		return t
	}
	c.write(num, v)
	return nil
}

func (c *CSR) check(num uint32, priv uint64, wr bool) *Trap {
	if !c.implemented(num) {
		return illegalCSR(num)
	}
	if priv < uint64(num>>8)&3 {
		return illegalCSR(num)
	}
	if wr && num>>10 == 3 {
		return illegalCSR(num)
	}
	return nil
}

func illegalCSR(num uint32) *Trap {
	return &Trap{Cause: riscv.CauseIllegalInstruction, Value: uint64(num)}
}

func (c *CSR) implemented(num uint32) bool {
	switch num {
	case riscv.CSRMStatus, riscv.CSRMisa, riscv.CSRMie, riscv.CSRMtvec,
		riscv.CSRMScratch, riscv.CSRMepc, riscv.CSRMcause, riscv.CSRMtval,
		riscv.CSRMip, riscv.CSRMCycle, riscv.CSRMInstret,
		riscv.CSRCycle, riscv.CSRTime, riscv.CSRInstret,
		riscv.CSRMVendorID, riscv.CSRMArchID, riscv.CSRMImpID, riscv.CSRMHartID:
		return true
	}
	return false
}

// read and write bypass privilege checks for the hart's own trap machinery,
// but still apply the per-register legality rules.
func (c *CSR) read(num uint32) uint64 {
	switch num {
	case riscv.CSRMtvec:
		return legalMtvec(c.regs[num])
	case riscv.CSRCycle:
		return c.regs[riscv.CSRMCycle]
	case riscv.CSRInstret:
		return c.regs[riscv.CSRMInstret]
	case riscv.CSRTime:
		if c.timeFn != nil {
			return c.timeFn()
		}
		return 0
	default:
		return c.regs[num]
	}
}

func (c *CSR) write(num uint32, v uint64) {
	switch num {
	case riscv.CSRMStatus:
		mask := uint64(riscv.MStatusMIE | riscv.MStatusMPIE | riscv.MStatusMPPMask)
		c.regs[num] = v & mask
	case riscv.CSRMisa:
		// WARL, fixed extension set: writes ignored
	case riscv.CSRMie:
		mask := uint64(1<<riscv.IntSoftwareM | 1<<riscv.IntTimerM | 1<<riscv.IntExternalM)
		c.regs[num] = v & mask
	case riscv.CSRMip:
		// pending bits are driven by the CLINT/PLIC lines, not software
	case riscv.CSRMepc:
		// IALIGN=16 with the C extension: only bit 0 is hardwired zero
		c.regs[num] = v &^ 1
	default:
		c.regs[num] = v
	}
}

// legalMtvec masks the reserved vector modes (>=2) and keeps the base
// 4-byte aligned, per the WARL rules for the register.
func legalMtvec(v uint64) uint64 {
	base := v &^ 3
	mode := v & 1
	return base | mode
}

// setPending drives one mip bit from a device interrupt line.
func (c *CSR) setPending(bit uint64, high bool) {
	if high {
		c.regs[riscv.CSRMip] |= 1 << bit
	} else {
		c.regs[riscv.CSRMip] &^= 1 << bit
	}
}
