package emu

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hartlab/rvemu/riscv"
)

func TestMachineSBIConsole(t *testing.T) {
	var out bytes.Buffer
	m, err := NewMachine(Config{XLEN: 64, Harts: 1, SBI: true, Stdout: &out})
	require.NoError(t, err)
	require.NoError(t, m.LoadRaw(program(
		addi(riscv.RegA7, 0, riscv.SBIConsolePutchar),
		addi(riscv.RegA0, 0, 'h'),
		insnEcall,
		addi(riscv.RegA0, 0, 'i'),
		insnEcall,
		addi(riscv.RegA0, 0, '\n'),
		insnEcall,
		insnEbreak,
	), RamBase))

	require.NoError(t, m.Run(100))
	require.True(t, m.Exited())
	require.Equal(t, "hi\n", out.String())
}

func TestMachineSBIShutdown(t *testing.T) {
	m, err := NewMachine(Config{XLEN: 64, Harts: 1, SBI: true})
	require.NoError(t, err)
	require.NoError(t, m.LoadRaw(program(
		addi(riscv.RegA7, 0, riscv.SBIShutdown),
		insnEcall,
	), RamBase))

	require.NoError(t, m.Run(10))
	require.True(t, m.Exited())
	require.Zero(t, m.ExitCode())
}

func TestMachineSBIProbe(t *testing.T) {
	m, err := NewMachine(Config{XLEN: 64, Harts: 1, SBI: true})
	require.NoError(t, err)
	require.NoError(t, m.LoadRaw(program(
		addi(riscv.RegA7, 0, riscv.SBIBaseExt),
		addi(riscv.RegA6, 0, riscv.SBIFnGetSpecVersion),
		insnEcall,
		addi(riscv.RegA7, 0, 0x7FF), // unknown extension
		insnEcall,
		insnEbreak,
	), RamBase))
	h := m.Hart(0)

	for i := 0; i < 3; i++ {
		m.Step()
	}
	require.Equal(t, uint64(riscv.SBISpecVersion), h.Reg(riscv.RegA0))

	for i := 0; i < 2; i++ {
		m.Step()
	}
	require.Equal(t, uint64(sbiErrNotSupported), h.Reg(riscv.RegA0))
}

func TestMachineEcallTrapsWithoutSBI(t *testing.T) {
	m, err := NewMachine(Config{XLEN: 64, Harts: 1})
	require.NoError(t, err)
	require.NoError(t, m.LoadRaw(program(insnEcall), RamBase))
	h := m.Hart(0)
	require.Nil(t, h.csr.Write(riscv.CSRMtvec, RamBase+0x100, riscv.PrivM))

	m.Step()
	require.Equal(t, uint64(riscv.CauseEnvCallFromM), h.csr.read(riscv.CSRMcause))
	require.Equal(t, uint64(RamBase+0x100), h.PC())
}

func TestMachineHTIFExit(t *testing.T) {
	m, err := NewMachine(Config{XLEN: 64, Harts: 1})
	require.NoError(t, err)
	require.NoError(t, m.LoadRaw(program(
		lui(5, HtifBase>>12),
		addi(6, 0, 42<<1|1),
		sw(5, 6, 0),
	), RamBase))

	require.NoError(t, m.Run(10))
	require.True(t, m.Exited())
	require.Equal(t, uint64(42), m.ExitCode())
}

func TestMachineUARTProgram(t *testing.T) {
	var out bytes.Buffer
	m, err := NewMachine(Config{XLEN: 64, Harts: 1, Stdout: &out})
	require.NoError(t, err)
	// drive the console through plain stores, no SBI involved
	require.NoError(t, m.LoadRaw(program(
		lui(5, UartBase>>12),
		addi(6, 0, 'o'),
		sb(5, 6, 0),
		addi(6, 0, 'k'),
		sb(5, 6, 0),
		insnEbreak,
	), RamBase))

	require.NoError(t, m.Run(100))
	require.Equal(t, "ok", out.String())
}

func TestMachineMultiHartAMO(t *testing.T) {
	m, err := NewMachine(Config{XLEN: 64, Harts: 2})
	require.NoError(t, err)
	require.NoError(t, m.LoadRaw(program(
		amoaddW(7, 5, 6),
		insnEbreak,
	), RamBase))
	for i := 0; i < 2; i++ {
		h := m.Hart(i)
		h.SetReg(5, RamBase+0x200)
		h.SetReg(6, 1)
	}

	require.NoError(t, m.Run(10))
	v, trap := m.bus.Read(RamBase+0x200, 4)
	require.Nil(t, trap)
	require.Equal(t, uint64(2), v, "both harts' increments must land")
}

func TestMachineCrossHartSC(t *testing.T) {
	m, err := NewMachine(Config{XLEN: 64, Harts: 2})
	require.NoError(t, err)
	require.NoError(t, m.LoadRaw(program(
		lrW(1, 5),
		scW(2, 5, 6),
		insnEbreak,
	), RamBase))
	for i := 0; i < 2; i++ {
		h := m.Hart(i)
		h.SetReg(5, RamBase+0x200)
		h.SetReg(6, uint64(10+i))
	}

	require.NoError(t, m.Run(10))
	// hart 0's sc runs first in the round and invalidates hart 1's reservation
	require.Zero(t, m.Hart(0).Reg(2))
	require.Equal(t, uint64(1), m.Hart(1).Reg(2))
	v, _ := m.bus.Read(RamBase+0x200, 4)
	require.Equal(t, uint64(10), v)
}

func TestMachineBootProtocol(t *testing.T) {
	m, err := NewMachine(Config{XLEN: 64, Harts: 2})
	require.NoError(t, err)
	require.NoError(t, m.LoadDTB([]byte{0xD0, 0x0D, 0xFE, 0xED}))
	require.NoError(t, m.LoadRaw(program(insnEbreak), RamBase))

	for i := 0; i < 2; i++ {
		h := m.Hart(i)
		require.Equal(t, uint64(RamBase), h.PC())
		require.Equal(t, uint64(i), h.Reg(riscv.RegA0), "a0 carries the hart id")
		require.Equal(t, uint64(RamBase+dtbOffset), h.Reg(riscv.RegA1), "a1 carries the DTB address")
	}
	v, _ := m.bus.Read(RamBase+dtbOffset, 4)
	require.Equal(t, uint64(0xEDFE0DD0), v)
}

func TestMachineSignature(t *testing.T) {
	m, err := NewMachine(Config{XLEN: 32, Harts: 1})
	require.NoError(t, err)
	require.NoError(t, m.ram.SetRange(0x300, []byte{
		0xEF, 0xBE, 0xAD, 0xDE,
		0x0D, 0xD0, 0xFE, 0xCA,
	}))
	m.sigBegin = RamBase + 0x300
	m.sigEnd = RamBase + 0x308

	var out bytes.Buffer
	require.NoError(t, m.Signature(&out))
	require.Equal(t, "deadbeef\ncafed00d\n", out.String())
}

func TestMachineSignatureMissing(t *testing.T) {
	m, err := NewMachine(Config{XLEN: 64, Harts: 1})
	require.NoError(t, err)
	var out bytes.Buffer
	require.Error(t, m.Signature(&out))
}

func TestMachineConfigValidation(t *testing.T) {
	_, err := NewMachine(Config{XLEN: 16, Harts: 1})
	require.Error(t, err)
	_, err = NewMachine(Config{XLEN: 64, Harts: 0})
	require.Error(t, err)
}

func TestMachineROMWindow(t *testing.T) {
	m, err := NewMachine(Config{XLEN: 64, Harts: 1, ROM: []byte{1, 2, 3, 4}})
	require.NoError(t, err)

	v, trap := m.bus.Read(RomBase, 4)
	require.Nil(t, trap)
	require.Equal(t, uint64(0x04030201), v)

	trap = m.bus.Write(RomBase, 4, 0)
	require.NotNil(t, trap)
	require.Equal(t, uint64(riscv.CauseStoreAccessFault), trap.Cause)
}
