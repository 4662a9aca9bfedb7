package emu

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/hartlab/rvemu/riscv"
)

// Physical memory map. RAM sits high so all of the low range is available for
// device windows; the DTB is placed one megabyte into RAM, out of the way of
// images linked at the RAM base.
const (
	RomBase   = 0x1000
	RomSize   = 0x1_0000
	HtifBase  = 0x0100_0000
	HtifSize  = 0x1000
	ClintBase = 0x0200_0000
	PlicBase  = 0x0C00_0000
	UartBase  = 0x1000_0000
	RamBase   = 0x8000_0000

	DefaultRamSize = 128 << 20
	dtbOffset      = 0x10_0000
)

// Config selects the guest platform shape. The zero value is not usable;
// DefaultConfig gives a single RV64 hart with default RAM.
type Config struct {
	XLEN    uint64
	Harts   int
	RamSize uint64

	// SBI makes the machine service environment calls itself (console and
	// shutdown) instead of delivering them to the guest's trap handler.
	SBI bool

	// ROM is copied into the boot ROM window at RomBase.
	ROM []byte

	Stdout io.Writer
	Stdin  io.Reader

	Log   log.Logger
	Trace bool
}

func DefaultConfig() Config {
	return Config{XLEN: 64, Harts: 1, RamSize: DefaultRamSize}
}

// Machine is the whole guest platform: bus, devices and harts. Harts are
// stepped round-robin from a single goroutine; the bus takes care of the
// memory-ordering guarantees they share.
type Machine struct {
	cfg Config
	log log.Logger

	bus   *Bus
	ram   *RAM
	clint *CLINT
	plic  *PLIC
	uart  *UART
	harts []*Hart

	dtbAddr uint64

	// signature window, set when an ELF with the benchmark symbols is loaded
	sigBegin uint64
	sigEnd   uint64

	exited   bool
	exitCode uint64
}

func NewMachine(cfg Config) (*Machine, error) {
	if cfg.XLEN != 32 && cfg.XLEN != 64 {
		return nil, fmt.Errorf("unsupported XLEN %d", cfg.XLEN)
	}
	if cfg.Harts < 1 {
		return nil, fmt.Errorf("need at least one hart, got %d", cfg.Harts)
	}
	if cfg.RamSize == 0 {
		cfg.RamSize = DefaultRamSize
	}
	if cfg.Log == nil {
		cfg.Log = log.NewLogger(log.DiscardHandler())
	}
	if cfg.Stdout == nil {
		cfg.Stdout = io.Discard
	}

	m := &Machine{cfg: cfg, log: cfg.Log}
	m.bus = NewBus()
	m.ram = NewRAM(cfg.RamSize)
	m.clint = NewCLINT(cfg.Harts)
	m.plic = NewPLIC(cfg.Harts)
	m.uart = NewUART(cfg.Stdout, cfg.Stdin)

	rom := make([]byte, RomSize)
	copy(rom, cfg.ROM)

	for _, r := range []struct {
		base, size uint64
		dev        Device
	}{
		{RomBase, RomSize, NewROM(rom)},
		{HtifBase, HtifSize, NewHTIF(m.halt)},
		{ClintBase, ClintSize, m.clint},
		{PlicBase, PlicSize, m.plic},
		{UartBase, UartSize, m.uart},
		{RamBase, cfg.RamSize, m.ram},
	} {
		if err := m.bus.Map(r.base, r.size, r.dev); err != nil {
			return nil, err
		}
	}

	var see *SEE
	if cfg.SBI {
		see = NewSEE(m.uart, m.halt)
	}
	for i := 0; i < cfg.Harts; i++ {
		h := NewHart(uint64(i), cfg.XLEN, m.bus)
		h.csr.timeFn = m.clint.Time
		h.see = see
		if cfg.Trace {
			h.tracer = &Tracer{Log: cfg.Log}
		}
		m.harts = append(m.harts, h)
	}
	return m, nil
}

func (m *Machine) Bus() *Bus        { return m.bus }
func (m *Machine) Hart(i int) *Hart { return m.harts[i] }
func (m *Machine) Harts() int       { return len(m.harts) }

// LoadRaw copies a flat binary into RAM at addr and treats addr as the entry
// point.
func (m *Machine) LoadRaw(image []byte, addr uint64) error {
	if addr < RamBase {
		return fmt.Errorf("image address %x below RAM base %x", addr, RamBase)
	}
	if err := m.ram.SetRange(addr-RamBase, image); err != nil {
		return err
	}
	m.boot(addr)
	return nil
}

// LoadDTB places the devicetree blob at its conventional spot in RAM. Harts
// booted afterwards receive its address in a1.
func (m *Machine) LoadDTB(dtb []byte) error {
	if len(dtb) == 0 {
		return nil
	}
	if err := m.ram.SetRange(dtbOffset, dtb); err != nil {
		return err
	}
	m.dtbAddr = RamBase + dtbOffset
	return nil
}

// boot resets every hart to the platform boot protocol: PC at the entry
// point, a0 holding the hart ID, a1 the DTB address (zero when absent).
func (m *Machine) boot(entry uint64) {
	for _, h := range m.harts {
		h.SetPC(entry)
		h.SetReg(riscv.RegA0, h.id)
		h.SetReg(riscv.RegA1, m.dtbAddr)
	}
}

// Step advances every hart by one instruction, then moves time forward one
// tick and refreshes the interrupt lines.
func (m *Machine) Step() {
	if m.exited {
		return
	}
	for _, h := range m.harts {
		h.Step()
	}
	m.clint.Tick(1)
	m.refreshInterrupts()

	if m.exited {
		return
	}
	for _, h := range m.harts {
		if !h.Exited {
			return
		}
	}
	// every hart halted on its own
	m.exited = true
}

func (m *Machine) refreshInterrupts() {
	m.plic.Raise(UartIRQ, m.uart.IRQPending())
	for _, h := range m.harts {
		h.setInterruptLines(
			m.clint.SoftwarePending(h.id),
			m.clint.TimerPending(h.id),
			m.plic.ExternalPending(h.id),
		)
	}
}

// Run steps the machine until it exits or maxSteps instructions per hart have
// retired. maxSteps 0 means no limit.
func (m *Machine) Run(maxSteps uint64) error {
	for i := uint64(0); !m.exited; i++ {
		if maxSteps != 0 && i >= maxSteps {
			return fmt.Errorf("stopped at step limit %d", maxSteps)
		}
		m.Step()
	}
	m.log.Info("machine exited", "code", m.exitCode)
	return nil
}

func (m *Machine) halt(code uint64) {
	m.exited = true
	m.exitCode = code
	for _, h := range m.harts {
		h.Exited = true
	}
}

func (m *Machine) Exited() bool     { return m.exited }
func (m *Machine) ExitCode() uint64 { return m.exitCode }
