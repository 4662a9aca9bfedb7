package emu

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
)

// LoadELF copies every PT_LOAD segment into guest RAM and boots the harts at
// the ELF entry point. If the image carries the begin_signature/end_signature
// symbols the window they bound is remembered for Signature.
func (m *Machine) LoadELF(f *elf.File) error {
	if err := m.checkELF(f); err != nil {
		return err
	}

	for i, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}
		if prog.Filesz > prog.Memsz {
			return fmt.Errorf("invalid PT_LOAD program segment %d, file size (%d) > mem size (%d)", i, prog.Filesz, prog.Memsz)
		}
		r := io.Reader(io.NewSectionReader(prog, 0, int64(prog.Filesz)))
		if prog.Filesz < prog.Memsz {
			r = io.MultiReader(r, bytes.NewReader(make([]byte, prog.Memsz-prog.Filesz)))
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("failed to read program segment %d: %w", i, err)
		}
		if prog.Vaddr < RamBase || prog.Vaddr+prog.Memsz > RamBase+m.ram.Size() {
			return fmt.Errorf("program segment %d at %x..%x falls outside RAM", i, prog.Vaddr, prog.Vaddr+prog.Memsz)
		}
		if err := m.ram.SetRange(prog.Vaddr-RamBase, data); err != nil {
			return fmt.Errorf("failed to load program segment %d: %w", i, err)
		}
	}

	if err := m.findSignature(f); err != nil {
		return err
	}
	m.boot(f.Entry)
	return nil
}

func (m *Machine) checkELF(f *elf.File) error {
	if f.Machine != elf.EM_RISCV {
		return fmt.Errorf("not a RISC-V image: machine type %s", f.Machine)
	}
	want := elf.ELFCLASS64
	if m.cfg.XLEN == 32 {
		want = elf.ELFCLASS32
	}
	if f.Class != want {
		return fmt.Errorf("image class %s does not match XLEN %d", f.Class, m.cfg.XLEN)
	}
	return nil
}

func (m *Machine) findSignature(f *elf.File) error {
	symbols, err := f.Symbols()
	if errors.Is(err, elf.ErrNoSymbols) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read symbols: %w", err)
	}
	for _, s := range symbols {
		switch s.Name {
		case "begin_signature":
			m.sigBegin = s.Value
		case "end_signature":
			m.sigEnd = s.Value
		}
	}
	if m.sigBegin > m.sigEnd {
		return fmt.Errorf("inverted signature window %x..%x", m.sigBegin, m.sigEnd)
	}
	return nil
}

// Signature writes the memory between begin_signature and end_signature as
// lowercase hex, one XLEN-wide word per line, lowest address first. This is
// what architecture test harnesses diff against their references.
func (m *Machine) Signature(w io.Writer) error {
	if m.sigBegin == 0 && m.sigEnd == 0 {
		return errors.New("image has no signature symbols")
	}
	width := m.cfg.XLEN / 8
	for addr := m.sigBegin; addr < m.sigEnd; addr += width {
		v, t := m.bus.Read(addr, width)
		if t != nil {
			return fmt.Errorf("signature read at %x: %v", addr, t)
		}
		var err error
		if width == 4 {
			_, err = fmt.Fprintf(w, "%08x\n", uint32(v))
		} else {
			_, err = fmt.Fprintf(w, "%016x\n", v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
