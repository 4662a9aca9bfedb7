package emu

import (
	"github.com/hartlab/rvemu/riscv"
)

// Hart is one hardware thread: 32 integer registers, program counter,
// privilege mode and a CSR bank, executing against the shared bus. All of its
// state is owned exclusively by the hart's own Step; the only cross-hart
// inputs are the interrupt lines and memory itself.
type Hart struct {
	id   uint64
	xlen uint64
	regs [32]uint64
	pc   uint64
	priv uint64

	csr *CSR
	bus *Bus
	dec Decoder

	// see, when set, services environment calls in place of the guest's own
	// trap handler (firmware emulation). Compliance runs leave it nil.
	see *SEE

	tracer *Tracer

	addrMask uint64

	Exited   bool
	ExitCode uint64
}

func NewHart(id uint64, xlen uint64, bus *Bus) *Hart {
	h := &Hart{
		id:       id,
		xlen:     xlen,
		priv:     riscv.PrivM,
		csr:      NewCSR(xlen, id),
		bus:      bus,
		addrMask: ^uint64(0),
	}
	if xlen == 32 {
		h.addrMask = 0xFFFF_FFFF
	}
	h.dec = NewDecoder(xlen, h.csr.read(riscv.CSRMisa))
	return h
}

func (h *Hart) ID() uint64 { return h.id }
func (h *Hart) PC() uint64 { return h.pc }
func (h *Hart) CSR() *CSR  { return h.csr }

func (h *Hart) SetPC(pc uint64) {
	h.pc = pc & h.addrMask
}

// Reg reads register x<i>; index 0 is always zero.
func (h *Hart) Reg(i uint64) uint64 {
	return h.regs[i&31]
}

// SetReg writes register x<i>; writes to x0 are discarded. On a 32-bit hart
// values are kept sign-extended to 64 bits, which preserves both signed and
// unsigned 32-bit comparison order.
func (h *Hart) SetReg(i uint64, v uint64) {
	if i&31 == 0 {
		return
	}
	if h.xlen == 32 {
		v = mask32Signed64(v)
	}
	h.regs[i&31] = v
}

// Step runs one instruction and then delivers at most one pending interrupt.
// Everything that can go wrong inside is architectural; there is no host
// error path here.
func (h *Hart) Step() {
	if h.Exited {
		return
	}
	h.csr.regs[riscv.CSRMCycle]++

	if t := h.exec(); t != nil {
		h.handleException(t)
	} else {
		h.csr.regs[riscv.CSRMInstret]++
	}

	if t := h.pendingInterrupt(); t != nil {
		h.takeTrap(t)
	}
}

func (h *Hart) exec() *Trap {
	pc := h.pc
	word, t := h.fetch(pc)
	if t != nil {
		return t
	}
	in, t := h.dec.Decode(word)
	if t != nil {
		return t
	}
	if h.tracer != nil {
		h.tracer.trace(h, pc, in)
	}
	return h.execute(pc, in)
}

func (h *Hart) fetch(pc uint64) (uint32, *Trap) {
	v, t := h.bus.Read(pc&h.addrMask, 4)
	if t != nil {
		// a failed fetch is an instruction access fault, not a load fault
		return 0, &Trap{Cause: riscv.CauseInstrAccessFault, Value: pc}
	}
	return uint32(v), nil
}

// handleException routes a synchronous trap: environment calls go to the SEE
// when firmware emulation is on, a breakpoint with no handler installed halts
// the hart (how bare test programs stop), everything else vectors.
func (h *Hart) handleException(t *Trap) {
	switch {
	case h.see != nil && t.Cause >= riscv.CauseEnvCallFromU && t.Cause <= riscv.CauseEnvCallFromM:
		h.see.Call(h)
	case t.Cause == riscv.CauseBreakpoint && h.csr.read(riscv.CSRMtvec) == 0:
		h.Exited = true
	default:
		h.takeTrap(t)
	}
}

// takeTrap performs the architectural trap entry: snapshot PC and cause,
// stack the interrupt-enable bit, switch to machine mode and vector.
func (h *Hart) takeTrap(t *Trap) {
	cause := t.Cause
	if t.Interrupt {
		cause |= 1 << (h.xlen - 1)
	}
	h.csr.write(riscv.CSRMepc, h.pc)
	h.csr.regs[riscv.CSRMcause] = cause
	h.csr.regs[riscv.CSRMtval] = t.Value

	status := h.csr.read(riscv.CSRMStatus)
	status &^= uint64(riscv.MStatusMPIE | riscv.MStatusMPPMask)
	if status&riscv.MStatusMIE != 0 {
		status |= riscv.MStatusMPIE
	}
	status |= h.priv << riscv.MStatusMPPShift
	status &^= riscv.MStatusMIE
	h.csr.regs[riscv.CSRMStatus] = status

	h.priv = riscv.PrivM

	vec := h.csr.read(riscv.CSRMtvec)
	base := vec &^ 3
	if vec&1 == 1 && t.Interrupt {
		base += 4 * t.Cause
	}
	h.SetPC(base)
}

// mret leaves the trap handler: restore privilege and the stacked
// interrupt-enable bit, and return to mepc.
func (h *Hart) mret() {
	status := h.csr.read(riscv.CSRMStatus)
	h.priv = status >> riscv.MStatusMPPShift & 3

	status &^= uint64(riscv.MStatusMIE)
	if status&riscv.MStatusMPIE != 0 {
		status |= riscv.MStatusMIE
	}
	status |= riscv.MStatusMPIE
	status &^= riscv.MStatusMPPMask
	status |= riscv.PrivM << riscv.MStatusMPPShift
	h.csr.regs[riscv.CSRMStatus] = status

	h.SetPC(h.csr.read(riscv.CSRMepc))
}

// pendingInterrupt evaluates the interrupt lines at the instruction boundary:
// individually enabled (mie), pending (mip), globally enabled (mstatus.MIE).
// External beats software beats timer.
func (h *Hart) pendingInterrupt() *Trap {
	if h.csr.read(riscv.CSRMStatus)&riscv.MStatusMIE == 0 {
		return nil
	}
	ip := h.csr.read(riscv.CSRMip) & h.csr.read(riscv.CSRMie)
	if ip == 0 {
		return nil
	}
	for _, cause := range []uint64{riscv.IntExternalM, riscv.IntSoftwareM, riscv.IntTimerM} {
		if ip&(1<<cause) != 0 {
			return &Trap{Cause: cause, Interrupt: true}
		}
	}
	return nil
}

// setInterruptLines drives the hart's mip bits from the device lines; called
// by the machine after each tick.
func (h *Hart) setInterruptLines(software, timer, external bool) {
	h.csr.setPending(riscv.IntSoftwareM, software)
	h.csr.setPending(riscv.IntTimerM, timer)
	h.csr.setPending(riscv.IntExternalM, external)
}

// ialign is the instruction address alignment: 2 with the C extension.
func (h *Hart) ialign() uint64 {
	if h.csr.read(riscv.CSRMisa)&riscv.MisaExtC != 0 {
		return 2
	}
	return 4
}
