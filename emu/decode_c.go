package emu

import (
	"github.com/hartlab/rvemu/riscv"
)

// Compressed ("C" extension) decoding. Each 16-bit encoding expands into the
// Instruction fields of its 32-bit equivalent, so a single execute path
// serves both widths. Register fields rd'/rs1'/rs2' are 3 bits wide and
// offset into x8..x15.

const rvcRegBase = 8

func (d Decoder) decodeCompressed(half uint16) (Instruction, *Trap) {
	in := Instruction{Raw: uint32(half), Size: 2}
	i := uint32(half)
	if i == 0 {
		// the all-zero halfword is defined illegal
		return in, illegalInstruction(i)
	}

	funct3 := (i >> 13) & 0x7
	switch i & 3 {
	case 0b00:
		return d.decodeC0(in, i, funct3)
	case 0b01:
		return d.decodeC1(in, i, funct3)
	case 0b10:
		return d.decodeC2(in, i, funct3)
	}
	return in, illegalInstruction(i)
}

func (d Decoder) decodeC0(in Instruction, i, funct3 uint32) (Instruction, *Trap) {
	rdP := (i>>2)&0x7 + rvcRegBase
	rs1P := (i>>7)&0x7 + rvcRegBase

	switch funct3 {
	case 0b000: // c.addi4spn -> addi rd', x2, nzuimm
		imm := (i>>11)&0x3<<4 | (i>>7)&0xF<<6 | (i>>6)&1<<2 | (i>>5)&1<<3
		if imm == 0 {
			return in, illegalInstruction(i)
		}
		in.Kind, in.Opcode, in.Funct3 = KindArith, riscv.OpcodeOpImm, 0
		in.Rd, in.Rs1, in.Imm = rdP, riscv.RegSP, uint64(imm)
	case 0b010: // c.lw -> lw rd', uimm(rs1')
		imm := (i>>10)&0x7<<3 | (i>>6)&1<<2 | (i>>5)&1<<6
		in.Kind, in.Opcode, in.Funct3 = KindLoad, riscv.OpcodeLoad, 2
		in.Rd, in.Rs1, in.Imm = rdP, rs1P, uint64(imm)
	case 0b011: // c.ld (RV64) -> ld rd', uimm(rs1')
		if d.xlen != 64 {
			return in, illegalInstruction(i)
		}
		imm := (i>>10)&0x7<<3 | (i>>5)&0x3<<6
		in.Kind, in.Opcode, in.Funct3 = KindLoad, riscv.OpcodeLoad, 3
		in.Rd, in.Rs1, in.Imm = rdP, rs1P, uint64(imm)
	case 0b110: // c.sw -> sw rs2', uimm(rs1')
		imm := (i>>10)&0x7<<3 | (i>>6)&1<<2 | (i>>5)&1<<6
		in.Kind, in.Opcode, in.Funct3 = KindStore, riscv.OpcodeStore, 2
		in.Rs1, in.Rs2, in.Imm = rs1P, rdP, uint64(imm)
	case 0b111: // c.sd (RV64) -> sd rs2', uimm(rs1')
		if d.xlen != 64 {
			return in, illegalInstruction(i)
		}
		imm := (i>>10)&0x7<<3 | (i>>5)&0x3<<6
		in.Kind, in.Opcode, in.Funct3 = KindStore, riscv.OpcodeStore, 3
		in.Rs1, in.Rs2, in.Imm = rs1P, rdP, uint64(imm)
	default:
		return in, illegalInstruction(i)
	}
	return in, nil
}

func (d Decoder) decodeC1(in Instruction, i, funct3 uint32) (Instruction, *Trap) {
	rd := (i >> 7) & 0x1F
	imm6 := signExtend64(uint64((i>>12)&1<<5|(i>>2)&0x1F), 5)

	switch funct3 {
	case 0b000: // c.addi (c.nop when rd=0)
		in.Kind, in.Opcode, in.Funct3 = KindArith, riscv.OpcodeOpImm, 0
		in.Rd, in.Rs1, in.Imm = rd, rd, imm6
	case 0b001:
		if d.xlen == 64 { // c.addiw -> addiw rd, rd, imm
			if rd == 0 {
				return in, illegalInstruction(i)
			}
			in.Kind, in.Opcode, in.Funct3 = KindArith, riscv.OpcodeOpImm32, 0
			in.Rd, in.Rs1, in.Imm = rd, rd, imm6
		} else { // c.jal -> jal x1, off
			in.Kind, in.Opcode = KindJump, riscv.OpcodeJal
			in.Rd, in.Imm = riscv.RegRA, rvcJumpOffset(i)
		}
	case 0b010: // c.li -> addi rd, x0, imm
		in.Kind, in.Opcode, in.Funct3 = KindArith, riscv.OpcodeOpImm, 0
		in.Rd, in.Rs1, in.Imm = rd, riscv.RegZero, imm6
	case 0b011:
		if rd == riscv.RegSP { // c.addi16sp
			imm := uint64((i>>12)&1<<9 | (i>>6)&1<<4 | (i>>5)&1<<6 | (i>>3)&0x3<<7 | (i>>2)&1<<5)
			imm = signExtend64(imm, 9)
			if imm == 0 {
				return in, illegalInstruction(i)
			}
			in.Kind, in.Opcode, in.Funct3 = KindArith, riscv.OpcodeOpImm, 0
			in.Rd, in.Rs1, in.Imm = rd, rd, imm
		} else { // c.lui -> lui rd, nzimm<<12
			imm := signExtend64(uint64((i>>12)&1<<17|(i>>2)&0x1F<<12), 17)
			if imm == 0 {
				return in, illegalInstruction(i)
			}
			in.Kind, in.Opcode = KindArith, riscv.OpcodeLui
			in.Rd, in.Imm = rd, imm
		}
	case 0b100:
		return d.decodeC1Alu(in, i)
	case 0b101: // c.j -> jal x0, off
		in.Kind, in.Opcode = KindJump, riscv.OpcodeJal
		in.Rd, in.Imm = riscv.RegZero, rvcJumpOffset(i)
	case 0b110, 0b111: // c.beqz / c.bnez
		imm := uint64((i>>12)&1<<8 | (i>>10)&0x3<<3 | (i>>5)&0x3<<6 | (i>>3)&0x3<<1 | (i>>2)&1<<5)
		in.Kind, in.Opcode = KindBranch, riscv.OpcodeBranch
		in.Funct3 = funct3 & 1 // BEQ or BNE
		in.Rs1, in.Rs2 = (i>>7)&0x7+rvcRegBase, riscv.RegZero
		in.Imm = signExtend64(imm, 8)
	}
	return in, nil
}

func (d Decoder) decodeC1Alu(in Instruction, i uint32) (Instruction, *Trap) {
	rd := (i>>7)&0x7 + rvcRegBase
	shamt := uint64((i>>12)&1<<5 | (i>>2)&0x1F)
	if d.xlen == 32 && shamt&0x20 != 0 {
		return in, illegalInstruction(i)
	}

	switch (i >> 10) & 0x3 {
	case 0b00: // c.srli
		in.Kind, in.Opcode, in.Funct3 = KindArith, riscv.OpcodeOpImm, 5
		in.Rd, in.Rs1, in.Imm = rd, rd, shamt
	case 0b01: // c.srai
		in.Kind, in.Opcode, in.Funct3 = KindArith, riscv.OpcodeOpImm, 5
		in.Rd, in.Rs1, in.Imm = rd, rd, shamt|0x10<<6
	case 0b10: // c.andi
		in.Kind, in.Opcode, in.Funct3 = KindArith, riscv.OpcodeOpImm, 7
		in.Rd, in.Rs1 = rd, rd
		in.Imm = signExtend64(shamt, 5)
	case 0b11:
		rs2 := (i>>2)&0x7 + rvcRegBase
		wide := i&(1<<12) != 0
		if wide && d.xlen != 64 {
			return in, illegalInstruction(i)
		}
		in.Kind, in.Rd, in.Rs1, in.Rs2 = KindArith, rd, rd, rs2
		in.Opcode = riscv.OpcodeOp
		if wide {
			in.Opcode = riscv.OpcodeOp32
		}
		switch (i >> 5) & 0x3 {
		case 0b00: // c.sub / c.subw
			in.Funct3, in.Funct7 = 0, 0x20
		case 0b01: // c.xor / c.addw
			if wide {
				in.Funct3, in.Funct7 = 0, 0x00
			} else {
				in.Funct3 = 4
			}
		case 0b10: // c.or
			if wide {
				return in, illegalInstruction(i)
			}
			in.Funct3 = 6
		case 0b11: // c.and
			if wide {
				return in, illegalInstruction(i)
			}
			in.Funct3 = 7
		}
	}
	return in, nil
}

func (d Decoder) decodeC2(in Instruction, i, funct3 uint32) (Instruction, *Trap) {
	rd := (i >> 7) & 0x1F
	rs2 := (i >> 2) & 0x1F

	switch funct3 {
	case 0b000: // c.slli
		shamt := uint64((i>>12)&1<<5 | (i>>2)&0x1F)
		if d.xlen == 32 && shamt&0x20 != 0 {
			return in, illegalInstruction(i)
		}
		in.Kind, in.Opcode, in.Funct3 = KindArith, riscv.OpcodeOpImm, 1
		in.Rd, in.Rs1, in.Imm = rd, rd, shamt
	case 0b010: // c.lwsp -> lw rd, uimm(x2)
		if rd == 0 {
			return in, illegalInstruction(i)
		}
		imm := (i>>12)&1<<5 | (i>>4)&0x7<<2 | (i>>2)&0x3<<6
		in.Kind, in.Opcode, in.Funct3 = KindLoad, riscv.OpcodeLoad, 2
		in.Rd, in.Rs1, in.Imm = rd, riscv.RegSP, uint64(imm)
	case 0b011: // c.ldsp (RV64) -> ld rd, uimm(x2)
		if d.xlen != 64 || rd == 0 {
			return in, illegalInstruction(i)
		}
		imm := (i>>12)&1<<5 | (i>>5)&0x3<<3 | (i>>2)&0x7<<6
		in.Kind, in.Opcode, in.Funct3 = KindLoad, riscv.OpcodeLoad, 3
		in.Rd, in.Rs1, in.Imm = rd, riscv.RegSP, uint64(imm)
	case 0b100:
		switch {
		case i&(1<<12) == 0 && rs2 == 0: // c.jr
			if rd == 0 {
				return in, illegalInstruction(i)
			}
			in.Kind, in.Opcode, in.Funct3 = KindJump, riscv.OpcodeJalr, 0
			in.Rd, in.Rs1 = riscv.RegZero, rd
		case i&(1<<12) == 0: // c.mv -> add rd, x0, rs2
			in.Kind, in.Opcode, in.Funct3 = KindArith, riscv.OpcodeOp, 0
			in.Rd, in.Rs1, in.Rs2 = rd, riscv.RegZero, rs2
		case rd == 0 && rs2 == 0: // c.ebreak
			in.Kind, in.Opcode = KindSystem, riscv.OpcodeSystem
			in.Funct3, in.Imm = 0, 1
		case rs2 == 0: // c.jalr
			in.Kind, in.Opcode, in.Funct3 = KindJump, riscv.OpcodeJalr, 0
			in.Rd, in.Rs1 = riscv.RegRA, rd
		default: // c.add
			in.Kind, in.Opcode, in.Funct3 = KindArith, riscv.OpcodeOp, 0
			in.Rd, in.Rs1, in.Rs2 = rd, rd, rs2
		}
	case 0b110: // c.swsp -> sw rs2, uimm(x2)
		imm := (i>>9)&0xF<<2 | (i>>7)&0x3<<6
		in.Kind, in.Opcode, in.Funct3 = KindStore, riscv.OpcodeStore, 2
		in.Rs1, in.Rs2, in.Imm = riscv.RegSP, rs2, uint64(imm)
	case 0b111: // c.sdsp (RV64) -> sd rs2, uimm(x2)
		if d.xlen != 64 {
			return in, illegalInstruction(i)
		}
		imm := (i>>10)&0x7<<3 | (i>>7)&0x7<<6
		in.Kind, in.Opcode, in.Funct3 = KindStore, riscv.OpcodeStore, 3
		in.Rs1, in.Rs2, in.Imm = riscv.RegSP, rs2, uint64(imm)
	default:
		return in, illegalInstruction(i)
	}
	return in, nil
}

// rvcJumpOffset reconstructs the scrambled C.J/C.JAL target offset:
// imm[11|4|9:8|10|6|7|3:1|5] from instruction bits [12:2].
func rvcJumpOffset(i uint32) uint64 {
	imm := (i>>12)&1<<11 |
		(i>>11)&1<<4 |
		(i>>9)&0x3<<8 |
		(i>>8)&1<<10 |
		(i>>7)&1<<6 |
		(i>>6)&1<<7 |
		(i>>3)&0x7<<1 |
		(i>>2)&1<<5
	return signExtend64(uint64(imm), 11)
}
