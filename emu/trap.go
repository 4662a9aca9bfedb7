package emu

import (
	"fmt"

	"github.com/hartlab/rvemu/riscv"
)

// Trap is the architectural outcome of a faulting instruction or a pending
// interrupt, produced during a step and consumed by the hart's trap logic in
// that same step. A nil *Trap from an execute path means the instruction
// committed.
type Trap struct {
	Cause     uint64 // cause code, without the interrupt bit
	Interrupt bool
	Value     uint64 // mtval: faulting address or instruction bits
}

func (t *Trap) String() string {
	if t.Interrupt {
		return fmt.Sprintf("interrupt %d", t.Cause)
	}
	return fmt.Sprintf("%s (tval=%x)", causeName(t.Cause), t.Value)
}

func causeName(cause uint64) string {
	switch cause {
	case riscv.CauseInstrAddrMisaligned:
		return "instruction address misaligned"
	case riscv.CauseInstrAccessFault:
		return "instruction access fault"
	case riscv.CauseIllegalInstruction:
		return "illegal instruction"
	case riscv.CauseBreakpoint:
		return "breakpoint"
	case riscv.CauseLoadAddrMisaligned:
		return "load address misaligned"
	case riscv.CauseLoadAccessFault:
		return "load access fault"
	case riscv.CauseStoreAddrMisaligned:
		return "store address misaligned"
	case riscv.CauseStoreAccessFault:
		return "store access fault"
	case riscv.CauseEnvCallFromU, riscv.CauseEnvCallFromS, riscv.CauseEnvCallFromM:
		return "environment call"
	default:
		return fmt.Sprintf("cause %d", cause)
	}
}

func loadFault(addr uint64) *Trap {
	return &Trap{Cause: riscv.CauseLoadAccessFault, Value: addr}
}

func storeFault(addr uint64) *Trap {
	return &Trap{Cause: riscv.CauseStoreAccessFault, Value: addr}
}
