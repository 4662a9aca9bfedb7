package emu

// Instruction encoders for building test programs. Immediates are taken as
// signed and masked to the field width, like an assembler would.

func encR(op, rd, f3, rs1, rs2, f7 uint32) uint32 {
	return op | rd<<7 | f3<<12 | rs1<<15 | rs2<<20 | f7<<25
}

func encI(op, rd, f3, rs1 uint32, imm int32) uint32 {
	return op | rd<<7 | f3<<12 | rs1<<15 | uint32(imm)&0xFFF<<20
}

func encS(op, f3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm) & 0xFFF
	return op | u&0x1F<<7 | f3<<12 | rs1<<15 | rs2<<20 | u>>5<<25
}

func encB(op, f3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm) & 0x1FFF
	return op | u>>11&1<<7 | u>>1&0xF<<8 | f3<<12 | rs1<<15 | rs2<<20 |
		u>>5&0x3F<<25 | u>>12&1<<31
}

func encU(op, rd uint32, imm uint32) uint32 {
	return op | rd<<7 | imm&0xFFFFF<<12
}

func encJ(op, rd uint32, imm int32) uint32 {
	u := uint32(imm) & 0x1FFFFF
	return op | rd<<7 | u>>12&0xFF<<12 | u>>11&1<<20 | u>>1&0x3FF<<21 | u>>20&1<<31
}

// Common mnemonics, enough to write the programs the tests run.

func addi(rd, rs1 uint32, imm int32) uint32  { return encI(0x13, rd, 0, rs1, imm) }
func add(rd, rs1, rs2 uint32) uint32         { return encR(0x33, rd, 0, rs1, rs2, 0x00) }
func sub(rd, rs1, rs2 uint32) uint32         { return encR(0x33, rd, 0, rs1, rs2, 0x20) }
func lui(rd uint32, imm uint32) uint32       { return encU(0x37, rd, imm) }
func auipc(rd uint32, imm uint32) uint32     { return encU(0x17, rd, imm) }
func jal(rd uint32, imm int32) uint32        { return encJ(0x6F, rd, imm) }
func jalr(rd, rs1 uint32, imm int32) uint32  { return encI(0x67, rd, 0, rs1, imm) }
func beq(rs1, rs2 uint32, imm int32) uint32  { return encB(0x63, 0, rs1, rs2, imm) }
func bne(rs1, rs2 uint32, imm int32) uint32  { return encB(0x63, 1, rs1, rs2, imm) }
func lw(rd, rs1 uint32, imm int32) uint32    { return encI(0x03, rd, 2, rs1, imm) }
func lb(rd, rs1 uint32, imm int32) uint32    { return encI(0x03, rd, 0, rs1, imm) }
func lbu(rd, rs1 uint32, imm int32) uint32   { return encI(0x03, rd, 4, rs1, imm) }
func ld(rd, rs1 uint32, imm int32) uint32    { return encI(0x03, rd, 3, rs1, imm) }
func sw(rs1, rs2 uint32, imm int32) uint32   { return encS(0x23, 2, rs1, rs2, imm) }
func sb(rs1, rs2 uint32, imm int32) uint32   { return encS(0x23, 0, rs1, rs2, imm) }
func sd(rs1, rs2 uint32, imm int32) uint32   { return encS(0x23, 3, rs1, rs2, imm) }
func csrrw(rd, csr, rs1 uint32) uint32       { return encI(0x73, rd, 1, rs1, int32(csr)) }
func csrrs(rd, csr, rs1 uint32) uint32       { return encI(0x73, rd, 2, rs1, int32(csr)) }
func mulInsn(rd, rs1, rs2 uint32) uint32     { return encR(0x33, rd, 0, rs1, rs2, 0x01) }
func divInsn(rd, rs1, rs2 uint32) uint32     { return encR(0x33, rd, 4, rs1, rs2, 0x01) }
func lrW(rd, rs1 uint32) uint32              { return encR(0x2F, rd, 2, rs1, 0, 0x02<<2) }
func scW(rd, rs1, rs2 uint32) uint32         { return encR(0x2F, rd, 2, rs1, rs2, 0x03<<2) }
func amoaddW(rd, rs1, rs2 uint32) uint32     { return encR(0x2F, rd, 2, rs1, rs2, 0x00) }
func amoswapW(rd, rs1, rs2 uint32) uint32    { return encR(0x2F, rd, 2, rs1, rs2, 0x01<<2) }
func amomaxuW(rd, rs1, rs2 uint32) uint32    { return encR(0x2F, rd, 2, rs1, rs2, 0x1C<<2) }

const (
	insnEcall  = 0x0000_0073
	insnEbreak = 0x0010_0073
	insnMret   = 0x3020_0073
	insnWfi    = 0x1050_0073
	insnFence  = 0x0000_000F
	insnNop    = 0x0000_0013
)

// program flattens instruction words into a little-endian byte image.
func program(words ...uint32) []byte {
	out := make([]byte, 0, len(words)*4)
	for _, w := range words {
		out = append(out, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	return out
}
