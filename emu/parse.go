package emu

// Field and immediate extraction from 32-bit instruction words.
// Immediates come out sign-extended per their format, ready for 64-bit
// address/value arithmetic. Unused fields are meaningless for the
// instruction type at hand and are simply ignored by the executor.

func parseOpcode(instr uint32) uint32 {
	return instr & 0x7F
}

func parseRd(instr uint32) uint32 {
	return (instr >> 7) & 0x1F
}

func parseFunct3(instr uint32) uint32 {
	return (instr >> 12) & 0x7
}

func parseRs1(instr uint32) uint32 {
	return (instr >> 15) & 0x1F
}

func parseRs2(instr uint32) uint32 {
	return (instr >> 20) & 0x1F
}

func parseFunct7(instr uint32) uint32 {
	return instr >> 25
}

// parseCSR returns the 12-bit CSR number of a SYSTEM instruction.
func parseCSR(instr uint32) uint32 {
	return instr >> 20
}

func parseImmTypeI(instr uint32) uint64 {
	return signExtend64(uint64(instr>>20), 11)
}

func parseImmTypeS(instr uint32) uint64 {
	imm := (instr>>25)<<5 | (instr>>7)&0x1F
	return signExtend64(uint64(imm), 11)
}

// parseImmTypeB reconstructs the branch offset: a signed multiple of 2 bytes,
// 13 bits with a hardwired zero low bit.
func parseImmTypeB(instr uint32) uint64 {
	imm := (instr>>8)&0xF<<1 |
		(instr>>25)&0x3F<<5 |
		(instr>>7)&1<<11 |
		(instr>>31)<<12
	return signExtend64(uint64(imm), 12)
}

// parseImmTypeU keeps the immediate in the upper 20 bits, low 12 bits zero.
func parseImmTypeU(instr uint32) uint64 {
	return signExtend64(uint64(instr&0xFFFF_F000), 31)
}

// parseImmTypeJ reconstructs the jump offset, even-aligned, sign-extended
// from bit 20.
func parseImmTypeJ(instr uint32) uint64 {
	imm := (instr>>21)&0x3FF<<1 |
		(instr>>20)&1<<11 |
		(instr>>12)&0xFF<<12 |
		(instr>>31)<<20
	return signExtend64(uint64(imm), 20)
}

// signExtend64 copies bit `bit` of v into all higher bit positions.
func signExtend64(v uint64, bit uint) uint64 {
	if v&(1<<bit) == 0 {
		return v & (^uint64(0) >> (63 - bit))
	}
	return v | (^uint64(0) << bit)
}

// mask32Signed64 truncates to 32 bits and sign-extends back into 64,
// the commit rule for all W-suffixed arithmetic.
func mask32Signed64(v uint64) uint64 {
	return signExtend64(v&0xFFFF_FFFF, 31)
}
