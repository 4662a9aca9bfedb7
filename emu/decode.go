package emu

import (
	"github.com/hartlab/rvemu/riscv"
)

// Kind is the coarse operation class of a decoded instruction.
type Kind uint8

const (
	KindArith Kind = iota
	KindLoad
	KindStore
	KindBranch
	KindJump
	KindSystem
	KindAtomic
	KindFence
)

func (k Kind) String() string {
	switch k {
	case KindArith:
		return "arith"
	case KindLoad:
		return "load"
	case KindStore:
		return "store"
	case KindBranch:
		return "branch"
	case KindJump:
		return "jump"
	case KindSystem:
		return "system"
	case KindAtomic:
		return "atomic"
	case KindFence:
		return "fence"
	default:
		return "unknown"
	}
}

// Instruction is one decoded operation. Compressed instructions are expanded
// into their 32-bit equivalent at decode time, so the executor only ever sees
// base encodings; Size records how many bytes the fetch consumed (2 or 4).
type Instruction struct {
	Raw  uint32
	Size uint64
	Kind Kind

	Opcode uint32
	Rd     uint32
	Funct3 uint32
	Rs1    uint32
	Rs2    uint32
	Funct7 uint32

	// Imm is sign-extended per format. For LUI/AUIPC it is the full
	// upper-immediate value with the low 12 bits zero. For shift-immediate
	// forms the low 6 bits are the shamt and bits [11:6] select the
	// logical/arithmetic variant, matching the I-type encoding.
	Imm uint64
}

// Decoder turns raw instruction words into Instructions for one ISA
// configuration. It holds no mutable state and is safe to share across harts.
type Decoder struct {
	xlen uint64 // 32 or 64
	misa uint64 // enabled extension bits
}

func NewDecoder(xlen uint64, misa uint64) Decoder {
	return Decoder{xlen: xlen, misa: misa}
}

func (d Decoder) ext(bit uint64) bool {
	return d.misa&bit != 0
}

func illegalInstruction(raw uint32) *Trap {
	return &Trap{Cause: riscv.CauseIllegalInstruction, Value: uint64(raw)}
}

// Decode decodes the instruction word at the low end of `word`. A compressed
// instruction only occupies the low 16 bits; the upper half is ignored.
// Failure is architectural: the returned trap carries the illegal encoding.
func (d Decoder) Decode(word uint32) (Instruction, *Trap) {
	if word&3 != 3 {
		if !d.ext(riscv.MisaExtC) {
			return Instruction{}, illegalInstruction(word & 0xFFFF)
		}
		return d.decodeCompressed(uint16(word))
	}
	if word&0x1C == 0x1C {
		// 48-bit and wider encodings are not supported
		return Instruction{}, illegalInstruction(word)
	}

	in := Instruction{
		Raw:    word,
		Size:   4,
		Opcode: parseOpcode(word),
		Rd:     parseRd(word),
		Funct3: parseFunct3(word),
		Rs1:    parseRs1(word),
		Rs2:    parseRs2(word),
		Funct7: parseFunct7(word),
	}

	switch in.Opcode {
	case riscv.OpcodeLoad:
		in.Kind = KindLoad
		in.Imm = parseImmTypeI(word)
		// LB/LH/LW/LBU/LHU always; LD/LWU only on RV64
		if in.Funct3 == 7 || (d.xlen == 32 && in.Funct3 >= 3 && in.Funct3 != 4 && in.Funct3 != 5) {
			return in, illegalInstruction(word)
		}
	case riscv.OpcodeStore:
		in.Kind = KindStore
		in.Imm = parseImmTypeS(word)
		if in.Funct3 > 3 || (d.xlen == 32 && in.Funct3 == 3) {
			return in, illegalInstruction(word)
		}
	case riscv.OpcodeBranch:
		in.Kind = KindBranch
		in.Imm = parseImmTypeB(word)
		if in.Funct3 == 2 || in.Funct3 == 3 {
			return in, illegalInstruction(word)
		}
	case riscv.OpcodeJal:
		in.Kind = KindJump
		in.Imm = parseImmTypeJ(word)
	case riscv.OpcodeJalr:
		in.Kind = KindJump
		in.Imm = parseImmTypeI(word)
		if in.Funct3 != 0 {
			return in, illegalInstruction(word)
		}
	case riscv.OpcodeLui, riscv.OpcodeAuipc:
		in.Kind = KindArith
		in.Imm = parseImmTypeU(word)
	case riscv.OpcodeOpImm:
		in.Kind = KindArith
		in.Imm = parseImmTypeI(word)
		if t := d.checkShiftImm(in); t != nil {
			return in, t
		}
	case riscv.OpcodeOpImm32:
		if d.xlen != 64 {
			return in, illegalInstruction(word)
		}
		in.Kind = KindArith
		in.Imm = parseImmTypeI(word)
		if in.Funct3 != 0 && in.Funct3 != 1 && in.Funct3 != 5 {
			return in, illegalInstruction(word)
		}
		// W-form shifts keep a 5-bit shamt even on RV64
		if in.Funct3 != 0 {
			if in.Imm&0x20 != 0 {
				return in, illegalInstruction(word)
			}
			if t := d.checkShiftImm(in); t != nil {
				return in, t
			}
		}
	case riscv.OpcodeOp, riscv.OpcodeOp32:
		if in.Opcode == riscv.OpcodeOp32 && d.xlen != 64 {
			return in, illegalInstruction(word)
		}
		in.Kind = KindArith
		switch in.Funct7 {
		case 0x00:
		case 0x20:
			// SUB/SRA group only exists for funct3 0 and 5
			if in.Funct3 != 0 && in.Funct3 != 5 {
				return in, illegalInstruction(word)
			}
		case 0x01:
			if !d.ext(riscv.MisaExtM) {
				return in, illegalInstruction(word)
			}
			if in.Opcode == riscv.OpcodeOp32 && in.Funct3 >= 1 && in.Funct3 <= 3 {
				return in, illegalInstruction(word)
			}
		default:
			return in, illegalInstruction(word)
		}
	case riscv.OpcodeAmo:
		if !d.ext(riscv.MisaExtA) {
			return in, illegalInstruction(word)
		}
		in.Kind = KindAtomic
		// 010 = W variants, 011 = D variants (RV64 only)
		if in.Funct3 != 2 && in.Funct3 != 3 {
			return in, illegalInstruction(word)
		}
		if in.Funct3 == 3 && d.xlen != 64 {
			return in, illegalInstruction(word)
		}
		switch in.Funct7 >> 2 {
		case 0x00, 0x01, 0x02, 0x03, 0x04, 0x08, 0x0C, 0x10, 0x14, 0x18, 0x1C:
		default:
			return in, illegalInstruction(word)
		}
	case riscv.OpcodeSystem:
		in.Kind = KindSystem
		in.Imm = uint64(parseCSR(word))
		if in.Funct3 == 4 {
			return in, illegalInstruction(word)
		}
	case riscv.OpcodeFence:
		in.Kind = KindFence
	default:
		return in, illegalInstruction(word)
	}
	return in, nil
}

// checkShiftImm rejects shift amounts beyond XLEN and unknown shift variants.
func (d Decoder) checkShiftImm(in Instruction) *Trap {
	if in.Funct3 != 1 && in.Funct3 != 5 {
		return nil
	}
	top := uint32(in.Imm>>6) & 0x3F
	if d.xlen == 32 {
		// shamt bit 5 must be zero on RV32
		if in.Imm&0x20 != 0 {
			return illegalInstruction(in.Raw)
		}
	}
	switch top {
	case 0x00:
		return nil
	case 0x10:
		if in.Funct3 == 5 {
			return nil
		}
	}
	return illegalInstruction(in.Raw)
}
