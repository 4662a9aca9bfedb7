package emu

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hartlab/rvemu/riscv"
)

func TestBusMapOverlap(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Map(0x1000, 0x1000, NewRAM(0x1000)))
	require.Error(t, b.Map(0x1800, 0x1000, NewRAM(0x1000)))
	require.Error(t, b.Map(0x0800, 0x1000, NewRAM(0x1000)))
	require.NoError(t, b.Map(0x2000, 0x1000, NewRAM(0x1000)))
}

func TestBusUnmappedFault(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Map(0x1000, 0x1000, NewRAM(0x1000)))

	_, trap := b.Read(0x5000, 4)
	require.NotNil(t, trap)
	require.Equal(t, uint64(riscv.CauseLoadAccessFault), trap.Cause)
	require.Equal(t, uint64(0x5000), trap.Value)

	trap = b.Write(0x5000, 4, 1)
	require.NotNil(t, trap)
	require.Equal(t, uint64(riscv.CauseStoreAccessFault), trap.Cause)
}

func TestBusAbsoluteFaultAddress(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Map(0x8000_0000, 0x100, NewRAM(0x100)))

	// in range for the region, out of range for the device
	_, trap := b.Read(0x8000_00FC, 8)
	require.NotNil(t, trap)
	require.Equal(t, uint64(0x8000_00FC), trap.Value, "trap value must be the absolute address")
}

func TestBusRoundtrip(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Map(0x8000_0000, 0x1000, NewRAM(0x1000)))

	require.Nil(t, b.Write(0x8000_0010, 8, 0x1122_3344_5566_7788))
	v, trap := b.Read(0x8000_0010, 8)
	require.Nil(t, trap)
	require.Equal(t, uint64(0x1122_3344_5566_7788), v)

	// little-endian byte order
	v, _ = b.Read(0x8000_0010, 1)
	require.Equal(t, uint64(0x88), v)
	v, _ = b.Read(0x8000_0017, 1)
	require.Equal(t, uint64(0x11), v)
}

func TestBusRMW(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Map(0, 0x100, NewRAM(0x100)))
	require.Nil(t, b.Write(0x10, 4, 40))

	old, trap := b.RMW(0x10, 4, func(old uint64) uint64 { return old + 2 })
	require.Nil(t, trap)
	require.Equal(t, uint64(40), old)
	v, _ := b.Read(0x10, 4)
	require.Equal(t, uint64(42), v)
}

func TestBusReservations(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Map(0, 0x100, NewRAM(0x100)))

	b.Reserve(0, 0x20)
	ok, trap := b.StoreConditional(0, 0x20, 4, 7)
	require.Nil(t, trap)
	require.True(t, ok)
	v, _ := b.Read(0x20, 4)
	require.Equal(t, uint64(7), v)

	// the reservation was consumed
	ok, _ = b.StoreConditional(0, 0x20, 4, 8)
	require.False(t, ok)

	// a store by another hart invalidates an overlapping reservation
	b.Reserve(0, 0x20)
	require.Nil(t, b.Write(0x24, 4, 1))
	ok, _ = b.StoreConditional(0, 0x20, 4, 9)
	require.False(t, ok)

	// a store well away from the reservation leaves it alone
	b.Reserve(0, 0x20)
	require.Nil(t, b.Write(0x40, 4, 1))
	ok, _ = b.StoreConditional(0, 0x20, 4, 10)
	require.True(t, ok)

	// SC to an address other than the reserved one fails
	b.Reserve(1, 0x20)
	ok, _ = b.StoreConditional(1, 0x28, 4, 11)
	require.False(t, ok)
}
