package emu

import (
	"github.com/hartlab/rvemu/riscv"
)

// SEE is a minimal supervisor execution environment servicing the legacy
// console and shutdown calls plus the base extension probe. It intercepts
// environment calls before they reach mtvec, the way firmware running at a
// higher privilege level would.
type SEE struct {
	uart *UART
	halt func(code uint64)
}

func NewSEE(uart *UART, halt func(code uint64)) *SEE {
	return &SEE{uart: uart, halt: halt}
}

// Non-constant so the negative error code can be converted to uint64.
var sbiErrNotSupported int64 = riscv.SBIErrNotSupported

// Call services the ecall the hart just executed: a7 selects the extension,
// a6 the function within it, a0.. carry arguments and a0 the result. The PC
// is stepped past the ecall so the guest resumes on the next instruction.
func (s *SEE) Call(h *Hart) {
	eid := h.Reg(riscv.RegA7)
	fid := h.Reg(riscv.RegA6)

	var ret uint64
	switch eid {
	case riscv.SBIConsolePutchar:
		s.uart.Putchar(byte(h.Reg(riscv.RegA0)))
	case riscv.SBIConsoleGetchar:
		ret = uint64(int64(s.uart.Getchar()))
	case riscv.SBIShutdown:
		s.halt(0)
		return
	case riscv.SBIBaseExt:
		switch fid {
		case riscv.SBIFnGetSpecVersion:
			ret = riscv.SBISpecVersion
		default:
			ret = uint64(sbiErrNotSupported)
		}
	default:
		ret = uint64(sbiErrNotSupported)
	}

	h.SetReg(riscv.RegA0, ret)
	h.SetPC(h.PC() + 4) // ecall has no compressed form
}
