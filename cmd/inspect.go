package cmd

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/hartlab/rvemu/emu"
	"github.com/hartlab/rvemu/riscv"
)

var (
	InspectInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "ELF image to inspect",
		Required:  true,
		TakesFile: true,
	}
	InspectXlenFlag = &cli.Uint64Flag{
		Name:  "xlen",
		Usage: "register width to decode for, 32 or 64",
		Value: 64,
	}
	InspectCountFlag = &cli.Uint64Flag{
		Name:  "count",
		Usage: "number of instructions to decode from the entry point",
		Value: 32,
	}
)

func Inspect(ctx *cli.Context) error {
	elfPath := ctx.Path(InspectInputFlag.Name)
	f, err := elf.Open(elfPath)
	if err != nil {
		return fmt.Errorf("failed to open ELF file %q: %w", elfPath, err)
	}
	defer f.Close()
	if f.Machine != elf.EM_RISCV {
		return fmt.Errorf("ELF is not RISC-V, but got %q", f.Machine.String())
	}
	fmt.Printf("entry: %016x  class: %s\n", f.Entry, f.Class)

	code, base, err := segmentAt(f, f.Entry)
	if err != nil {
		return err
	}

	misa := uint64(riscv.MisaExtI | riscv.MisaExtM | riscv.MisaExtA | riscv.MisaExtC)
	dec := emu.NewDecoder(ctx.Uint64(InspectXlenFlag.Name), misa)

	pc := f.Entry
	for n := uint64(0); n < ctx.Uint64(InspectCountFlag.Name); n++ {
		off := pc - base
		if off+2 > uint64(len(code)) {
			break
		}
		word := uint32(binary.LittleEndian.Uint16(code[off:]))
		if word&3 == 3 {
			if off+4 > uint64(len(code)) {
				break
			}
			word = binary.LittleEndian.Uint32(code[off:])
		}
		in, trap := dec.Decode(word)
		if trap != nil {
			fmt.Printf("%016x: %08x  <illegal>\n", pc, word)
			pc += 4
			continue
		}
		fmt.Printf("%016x: %08x  %-6s op=%02x f3=%d rd=%-4s rs1=%-4s rs2=%-4s imm=%x\n",
			pc, in.Raw, in.Kind, in.Opcode, in.Funct3,
			riscv.RegName(uint64(in.Rd)), riscv.RegName(uint64(in.Rs1)), riscv.RegName(uint64(in.Rs2)),
			in.Imm)
		pc += in.Size
	}
	return nil
}

// segmentAt returns the loadable segment containing addr.
func segmentAt(f *elf.File, addr uint64) ([]byte, uint64, error) {
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if addr >= prog.Vaddr && addr < prog.Vaddr+prog.Filesz {
			data, err := io.ReadAll(io.NewSectionReader(prog, 0, int64(prog.Filesz)))
			if err != nil {
				return nil, 0, fmt.Errorf("failed to read segment at %x: %w", prog.Vaddr, err)
			}
			return data, prog.Vaddr, nil
		}
	}
	return nil, 0, fmt.Errorf("no loadable segment contains %x", addr)
}

var InspectCommand = &cli.Command{
	Name:        "inspect",
	Usage:       "Decode the first instructions of an ELF image",
	Description: "Decode the first instructions of an ELF image starting at its entry point, to sanity-check what the machine will fetch.",
	Action:      Inspect,
	Flags: []cli.Flag{
		InspectInputFlag,
		InspectXlenFlag,
		InspectCountFlag,
	},
}
