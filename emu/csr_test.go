package emu

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hartlab/rvemu/riscv"
)

func TestCSRAccessControl(t *testing.T) {
	c := NewCSR(64, 3)

	// machine registers need machine privilege
	_, trap := c.Read(riscv.CSRMStatus, riscv.PrivU)
	require.NotNil(t, trap)
	require.Equal(t, uint64(riscv.CauseIllegalInstruction), trap.Cause)
	_, trap = c.Read(riscv.CSRMStatus, riscv.PrivM)
	require.Nil(t, trap)

	// the read-only space rejects writes at any privilege
	trap = c.Write(riscv.CSRMHartID, 0, riscv.PrivM)
	require.NotNil(t, trap)
	v, trap := c.Read(riscv.CSRMHartID, riscv.PrivM)
	require.Nil(t, trap)
	require.Equal(t, uint64(3), v)

	// unimplemented registers trap instead of reading zero
	_, trap = c.Read(0x345, riscv.PrivM)
	require.NotNil(t, trap)
}

func TestCSRMasks(t *testing.T) {
	c := NewCSR(64, 0)

	require.Nil(t, c.Write(riscv.CSRMStatus, ^uint64(0), riscv.PrivM))
	v, _ := c.Read(riscv.CSRMStatus, riscv.PrivM)
	require.Equal(t, uint64(riscv.MStatusMIE|riscv.MStatusMPIE|riscv.MStatusMPPMask), v)

	// misa is WARL with a fixed extension set
	misa, _ := c.Read(riscv.CSRMisa, riscv.PrivM)
	require.Nil(t, c.Write(riscv.CSRMisa, 0, riscv.PrivM))
	v, _ = c.Read(riscv.CSRMisa, riscv.PrivM)
	require.Equal(t, misa, v)

	// mip is driven by the interrupt lines, not software
	require.Nil(t, c.Write(riscv.CSRMip, ^uint64(0), riscv.PrivM))
	v, _ = c.Read(riscv.CSRMip, riscv.PrivM)
	require.Zero(t, v)
	c.setPending(riscv.IntTimerM, true)
	v, _ = c.Read(riscv.CSRMip, riscv.PrivM)
	require.Equal(t, uint64(1)<<riscv.IntTimerM, v)
	c.setPending(riscv.IntTimerM, false)
	v, _ = c.Read(riscv.CSRMip, riscv.PrivM)
	require.Zero(t, v)

	// mepc bit 0 is hardwired zero
	require.Nil(t, c.Write(riscv.CSRMepc, 0x8000_0003, riscv.PrivM))
	v, _ = c.Read(riscv.CSRMepc, riscv.PrivM)
	require.Equal(t, uint64(0x8000_0002), v)
}

func TestCSRMtvecLegalization(t *testing.T) {
	c := NewCSR(64, 0)

	// reserved mode 2 reads back as direct
	require.Nil(t, c.Write(riscv.CSRMtvec, 0x8000_0006, riscv.PrivM))
	v, _ := c.Read(riscv.CSRMtvec, riscv.PrivM)
	require.Equal(t, uint64(0x8000_0004), v)

	// vectored mode is preserved
	require.Nil(t, c.Write(riscv.CSRMtvec, 0x8000_0005, riscv.PrivM))
	v, _ = c.Read(riscv.CSRMtvec, riscv.PrivM)
	require.Equal(t, uint64(0x8000_0005), v)
}

func TestCSRCounters(t *testing.T) {
	c := NewCSR(64, 0)
	c.regs[riscv.CSRMCycle] = 123
	c.regs[riscv.CSRMInstret] = 45
	c.timeFn = func() uint64 { return 999 }

	v, trap := c.Read(riscv.CSRCycle, riscv.PrivU)
	require.Nil(t, trap, "user counters are readable at any privilege")
	require.Equal(t, uint64(123), v)
	v, _ = c.Read(riscv.CSRInstret, riscv.PrivU)
	require.Equal(t, uint64(45), v)
	v, _ = c.Read(riscv.CSRTime, riscv.PrivU)
	require.Equal(t, uint64(999), v)
}

func TestCSRMisaReset(t *testing.T) {
	c64 := NewCSR(64, 0)
	v, _ := c64.Read(riscv.CSRMisa, riscv.PrivM)
	require.Equal(t, uint64(2)<<62, v&(3<<62))
	require.NotZero(t, v&riscv.MisaExtI)
	require.NotZero(t, v&riscv.MisaExtM)
	require.NotZero(t, v&riscv.MisaExtA)
	require.NotZero(t, v&riscv.MisaExtC)

	c32 := NewCSR(32, 0)
	v, _ = c32.Read(riscv.CSRMisa, riscv.PrivM)
	require.Equal(t, uint64(1)<<30, v&(3<<30))
}
