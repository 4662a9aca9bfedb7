package cmd

import (
	"debug/elf"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/pkg/profile"

	"github.com/hartlab/rvemu/emu"
)

var (
	RunInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "guest image to run, ELF unless --raw is set",
		Required:  true,
		TakesFile: true,
	}
	RunRawFlag = &cli.BoolFlag{
		Name:  "raw",
		Usage: "treat the input as a flat binary instead of an ELF",
	}
	RunLoadAddrFlag = &cli.Uint64Flag{
		Name:  "load-addr",
		Usage: "load address (and entry point) for --raw images",
		Value: emu.RamBase,
	}
	RunXlenFlag = &cli.Uint64Flag{
		Name:  "xlen",
		Usage: "register width of the guest, 32 or 64",
		Value: 64,
	}
	RunHartsFlag = &cli.IntFlag{
		Name:  "harts",
		Usage: "number of harts",
		Value: 1,
	}
	RunRamSizeFlag = &cli.Uint64Flag{
		Name:  "ram-size",
		Usage: "guest RAM size in bytes",
		Value: emu.DefaultRamSize,
	}
	RunSBIFlag = &cli.BoolFlag{
		Name:  "sbi",
		Usage: "service SBI console/shutdown calls in the emulator instead of the guest trap handler",
		Value: true,
	}
	RunStepsFlag = &cli.Uint64Flag{
		Name:  "steps",
		Usage: "stop with an error after this many steps, 0 to run to completion",
	}
	RunTraceFlag = &cli.BoolFlag{
		Name:  "trace",
		Usage: "log every executed instruction (slow)",
	}
	RunDTBFlag = &cli.PathFlag{
		Name:      "dtb",
		Usage:     "devicetree blob to place in guest RAM",
		TakesFile: true,
	}
	RunSignatureFlag = &cli.PathFlag{
		Name:  "signature",
		Usage: "write the test signature window to this file after the run",
	}
	RunInfoEveryFlag = &cli.Uint64Flag{
		Name:  "info-every",
		Usage: "log progress every N steps, 0 to disable",
		Value: 10_000_000,
	}
	RunRawConsoleFlag = &cli.BoolFlag{
		Name:  "raw-console",
		Usage: "pass UART output through to stdout unwrapped instead of logging it",
	}
	RunPProfCPU = &cli.BoolFlag{
		Name:  "pprof.cpu",
		Usage: "profile cpu usage of the run",
	}
)

func Run(ctx *cli.Context) error {
	if ctx.Bool(RunPProfCPU.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}

	lvl := log.LevelInfo
	if ctx.Bool(RunTraceFlag.Name) {
		lvl = log.LevelTrace
	}
	l := Logger(os.Stderr, lvl)

	console := io.Writer(&LoggingWriter{Name: "uart", Log: l})
	if ctx.Bool(RunRawConsoleFlag.Name) {
		console = os.Stdout
	}

	m, err := emu.NewMachine(emu.Config{
		XLEN:    ctx.Uint64(RunXlenFlag.Name),
		Harts:   ctx.Int(RunHartsFlag.Name),
		RamSize: ctx.Uint64(RunRamSizeFlag.Name),
		SBI:     ctx.Bool(RunSBIFlag.Name),
		Stdout:  console,
		Stdin:   os.Stdin,
		Log:     l,
		Trace:   ctx.Bool(RunTraceFlag.Name),
	})
	if err != nil {
		return err
	}

	if dtbPath := ctx.Path(RunDTBFlag.Name); dtbPath != "" {
		dtb, err := os.ReadFile(dtbPath)
		if err != nil {
			return fmt.Errorf("failed to read dtb: %w", err)
		}
		if err := m.LoadDTB(dtb); err != nil {
			return fmt.Errorf("failed to place dtb: %w", err)
		}
	}

	input := ctx.Path(RunInputFlag.Name)
	if ctx.Bool(RunRawFlag.Name) {
		image, err := os.ReadFile(input)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		if err := m.LoadRaw(image, ctx.Uint64(RunLoadAddrFlag.Name)); err != nil {
			return fmt.Errorf("failed to load image: %w", err)
		}
	} else {
		f, err := elf.Open(input)
		if err != nil {
			return fmt.Errorf("failed to open ELF: %w", err)
		}
		defer f.Close()
		if err := m.LoadELF(f); err != nil {
			return fmt.Errorf("failed to load ELF: %w", err)
		}
	}

	maxSteps := ctx.Uint64(RunStepsFlag.Name)
	infoEvery := ctx.Uint64(RunInfoEveryFlag.Name)
	start := time.Now()

	var steps uint64
	for !m.Exited() {
		if steps%100 == 0 { // don't do the ctx err check (includes lock) too often
			if err := ctx.Context.Err(); err != nil {
				return err
			}
		}
		if infoEvery != 0 && steps != 0 && steps%infoEvery == 0 {
			delta := time.Since(start)
			l.Info("processing",
				"step", steps,
				"pc", HexU64(m.Hart(0).PC()),
				"ips", float64(steps)/(float64(delta)/float64(time.Second)),
			)
		}
		if maxSteps != 0 && steps >= maxSteps {
			return fmt.Errorf("stopped at step limit %d (PC: %016x)", maxSteps, m.Hart(0).PC())
		}
		m.Step()
		steps++
	}
	l.Info("machine exited", "code", m.ExitCode(), "steps", steps, "duration", time.Since(start))

	if sigPath := ctx.Path(RunSignatureFlag.Name); sigPath != "" {
		f, err := os.Create(sigPath)
		if err != nil {
			return fmt.Errorf("failed to create signature file: %w", err)
		}
		defer f.Close()
		if err := m.Signature(f); err != nil {
			return fmt.Errorf("failed to write signature: %w", err)
		}
	}

	if code := m.ExitCode(); code != 0 {
		return fmt.Errorf("guest exited with code %d", code)
	}
	return nil
}

var RunCommand = &cli.Command{
	Name:        "run",
	Usage:       "Run a guest image to completion.",
	Description: "Run a guest image to completion. Boots every hart at the image entry point and steps the machine until it halts via SBI shutdown, the host interface port, or a breakpoint with no handler installed.",
	Action:      Run,
	Flags: []cli.Flag{
		RunInputFlag,
		RunRawFlag,
		RunLoadAddrFlag,
		RunXlenFlag,
		RunHartsFlag,
		RunRamSizeFlag,
		RunSBIFlag,
		RunStepsFlag,
		RunTraceFlag,
		RunDTBFlag,
		RunSignatureFlag,
		RunInfoEveryFlag,
		RunRawConsoleFlag,
		RunPProfCPU,
	},
}
