package emu

import (
	"github.com/holiman/uint256"

	"github.com/hartlab/rvemu/riscv"
)

// execute runs one decoded instruction. A nil return means the instruction
// committed fully, registers and PC included; a non-nil trap means no
// architectural state changed. pc is the address the instruction was fetched
// from, h.pc still points at it too.
func (h *Hart) execute(pc uint64, in Instruction) *Trap {
	rs1 := uint64(in.Rs1)
	rs2 := uint64(in.Rs2)
	rd := uint64(in.Rd)

	switch in.Opcode {
	case riscv.OpcodeLoad: // 000_0011: memory loading
		size := uint64(1) << (in.Funct3 & 3)
		signed := in.Funct3&4 == 0
		addr := (h.Reg(rs1) + in.Imm) & h.addrMask
		if addr&(size-1) != 0 {
			return &Trap{Cause: riscv.CauseLoadAddrMisaligned, Value: addr}
		}
		v, t := h.bus.Read(addr, size)
		if t != nil {
			return t
		}
		if signed {
			v = signExtend64(v, uint(size*8-1))
		}
		h.SetReg(rd, v)
		h.SetPC(pc + in.Size)

	case riscv.OpcodeStore: // 010_0011: memory storing
		size := uint64(1) << in.Funct3
		addr := (h.Reg(rs1) + in.Imm) & h.addrMask
		if addr&(size-1) != 0 {
			return &Trap{Cause: riscv.CauseStoreAddrMisaligned, Value: addr}
		}
		if t := h.bus.Write(addr, size, h.Reg(rs2)); t != nil {
			return t
		}
		h.SetPC(pc + in.Size)

	case riscv.OpcodeBranch: // 110_0011: branching
		x := h.Reg(rs1)
		y := h.Reg(rs2)
		var taken bool
		switch in.Funct3 {
		case 0: // beq
			taken = x == y
		case 1: // bne
			taken = x != y
		case 4: // blt
			taken = int64(x) < int64(y)
		case 5: // bge
			taken = int64(x) >= int64(y)
		case 6: // bltu
			taken = x < y
		case 7: // bgeu
			taken = x >= y
		}
		if !taken {
			h.SetPC(pc + in.Size)
			break
		}
		target := (pc + in.Imm) & h.addrMask
		if target%h.ialign() != 0 {
			return &Trap{Cause: riscv.CauseInstrAddrMisaligned, Value: target}
		}
		h.SetPC(target)

	case riscv.OpcodeJal: // 110_1111: jump and link
		target := (pc + in.Imm) & h.addrMask
		if target%h.ialign() != 0 {
			return &Trap{Cause: riscv.CauseInstrAddrMisaligned, Value: target}
		}
		h.SetReg(rd, pc+in.Size)
		h.SetPC(target)

	case riscv.OpcodeJalr: // 110_0111: jump and link register
		target := (h.Reg(rs1) + in.Imm) &^ 1 & h.addrMask
		if target%h.ialign() != 0 {
			return &Trap{Cause: riscv.CauseInstrAddrMisaligned, Value: target}
		}
		h.SetReg(rd, pc+in.Size)
		h.SetPC(target)

	case riscv.OpcodeLui: // 011_0111: load upper immediate
		h.SetReg(rd, in.Imm)
		h.SetPC(pc + in.Size)

	case riscv.OpcodeAuipc: // 001_0111: PC-relative upper immediate
		h.SetReg(rd, pc+in.Imm)
		h.SetPC(pc + in.Size)

	case riscv.OpcodeOpImm: // 001_0011: immediate arithmetic
		x := h.Reg(rs1)
		imm := in.Imm
		var v uint64
		switch in.Funct3 {
		case 0: // addi
			v = x + imm
		case 1: // slli
			v = x << (imm & h.shamtMask())
		case 2: // slti
			v = bool2u64(int64(x) < int64(imm))
		case 3: // sltiu
			v = bool2u64(x < imm)
		case 4: // xori
			v = x ^ imm
		case 5: // srli / srai
			sh := imm & h.shamtMask()
			if imm>>6&0x3F == 0x10 {
				v = h.sra(x, sh)
			} else {
				v = h.srl(x, sh)
			}
		case 6: // ori
			v = x | imm
		case 7: // andi
			v = x & imm
		}
		h.SetReg(rd, v)
		h.SetPC(pc + in.Size)

	case riscv.OpcodeOpImm32: // 001_1011: immediate arithmetic, 32-bit words
		x := h.Reg(rs1)
		imm := in.Imm
		var v uint64
		switch in.Funct3 {
		case 0: // addiw
			v = mask32Signed64(x + imm)
		case 1: // slliw
			v = mask32Signed64(x << (imm & 0x1F))
		case 5: // srliw / sraiw
			sh := imm & 0x1F
			if imm>>6&0x3F == 0x10 {
				v = uint64(int64(int32(uint32(x)) >> sh))
			} else {
				v = mask32Signed64(uint64(uint32(x) >> sh))
			}
		}
		h.SetReg(rd, v)
		h.SetPC(pc + in.Size)

	case riscv.OpcodeOp: // 011_0011: register arithmetic
		x := h.Reg(rs1)
		y := h.Reg(rs2)
		var v uint64
		switch {
		case in.Funct7 == 1: // RV32M/RV64M
			v = h.mulDiv(in.Funct3, x, y)
		default:
			switch in.Funct3 {
			case 0: // add / sub
				if in.Funct7 == 0x20 {
					v = x - y
				} else {
					v = x + y
				}
			case 1: // sll
				v = x << (y & h.shamtMask())
			case 2: // slt
				v = bool2u64(int64(x) < int64(y))
			case 3: // sltu
				v = bool2u64(x < y)
			case 4: // xor
				v = x ^ y
			case 5: // srl / sra
				sh := y & h.shamtMask()
				if in.Funct7 == 0x20 {
					v = h.sra(x, sh)
				} else {
					v = h.srl(x, sh)
				}
			case 6: // or
				v = x | y
			case 7: // and
				v = x & y
			}
		}
		h.SetReg(rd, v)
		h.SetPC(pc + in.Size)

	case riscv.OpcodeOp32: // 011_1011: register arithmetic, 32-bit words
		x := h.Reg(rs1)
		y := h.Reg(rs2)
		var v uint64
		switch {
		case in.Funct7 == 1: // RV64M W-forms
			v = mulDiv32(in.Funct3, uint32(x), uint32(y))
		default:
			switch in.Funct3 {
			case 0: // addw / subw
				if in.Funct7 == 0x20 {
					v = mask32Signed64(x - y)
				} else {
					v = mask32Signed64(x + y)
				}
			case 1: // sllw
				v = mask32Signed64(x << (y & 0x1F))
			case 5: // srlw / sraw
				sh := y & 0x1F
				if in.Funct7 == 0x20 {
					v = uint64(int64(int32(uint32(x)) >> sh))
				} else {
					v = mask32Signed64(uint64(uint32(x) >> sh))
				}
			default:
				return illegalInstruction(in.Raw)
			}
		}
		h.SetReg(rd, v)
		h.SetPC(pc + in.Size)

	case riscv.OpcodeSystem: // 111_0011: environment things
		return h.execSystem(pc, in)

	case riscv.OpcodeAmo: // 010_1111: atomic memory operations
		return h.execAtomic(pc, in)

	case riscv.OpcodeFence: // 000_1111: fence
		// single bus, strong ordering within a step: both FENCE and FENCE.I
		// are satisfied trivially
		h.SetPC(pc + in.Size)

	default:
		return illegalInstruction(in.Raw)
	}
	return nil
}

func (h *Hart) execSystem(pc uint64, in Instruction) *Trap {
	if in.Funct3 == 0 {
		switch uint32(in.Imm) {
		case 0: // ecall
			return &Trap{Cause: riscv.CauseEnvCallFromU + h.priv}
		case 1: // ebreak
			return &Trap{Cause: riscv.CauseBreakpoint, Value: pc}
		case 0x302: // mret
			if h.priv != riscv.PrivM {
				return illegalInstruction(in.Raw)
			}
			h.mret()
			return nil
		case 0x105: // wfi
			// interrupts are sampled every step anyway; treat as a hint
			h.SetPC(pc + in.Size)
			return nil
		default:
			return illegalInstruction(in.Raw)
		}
	}

	// Zicsr: funct3 [2:0] low bits select rw/rs/rc, bit 2 selects the
	// zero-extended rs1-field immediate as source.
	num := uint32(in.Imm)
	src := h.Reg(uint64(in.Rs1))
	if in.Funct3&4 != 0 {
		src = uint64(in.Rs1)
	}
	old, t := h.csr.Read(num, h.priv)
	if t != nil {
		return t
	}
	op := in.Funct3 & 3
	// rs/rc forms with a zero source read without writing, so they never
	// fault on read-only registers
	if op == 1 || in.Rs1 != 0 {
		var v uint64
		switch op {
		case 1: // csrrw
			v = src
		case 2: // csrrs
			v = old | src
		case 3: // csrrc
			v = old &^ src
		}
		if t := h.csr.Write(num, v, h.priv); t != nil {
			return t
		}
	}
	h.SetReg(uint64(in.Rd), old)
	h.SetPC(pc + in.Size)
	return nil
}

func (h *Hart) execAtomic(pc uint64, in Instruction) *Trap {
	size := uint64(4)
	if in.Funct3 == 3 {
		size = 8
	}
	addr := h.Reg(uint64(in.Rs1)) & h.addrMask
	src := h.Reg(uint64(in.Rs2))

	switch in.Funct7 >> 2 {
	case 0x02: // lr
		if addr&(size-1) != 0 {
			return &Trap{Cause: riscv.CauseLoadAddrMisaligned, Value: addr}
		}
		v, t := h.bus.Read(addr, size)
		if t != nil {
			return t
		}
		h.bus.Reserve(h.id, addr)
		if size == 4 {
			v = mask32Signed64(v)
		}
		h.SetReg(uint64(in.Rd), v)

	case 0x03: // sc
		if addr&(size-1) != 0 {
			return &Trap{Cause: riscv.CauseStoreAddrMisaligned, Value: addr}
		}
		ok, t := h.bus.StoreConditional(h.id, addr, size, src)
		if t != nil {
			return t
		}
		if ok {
			h.SetReg(uint64(in.Rd), 0)
		} else {
			h.SetReg(uint64(in.Rd), 1)
		}

	default: // amoswap/add/xor/and/or/min/max/minu/maxu
		if addr&(size-1) != 0 {
			return &Trap{Cause: riscv.CauseStoreAddrMisaligned, Value: addr}
		}
		op := in.Funct7 >> 2
		old, t := h.bus.RMW(addr, size, func(old uint64) uint64 {
			return amoALU(op, size, old, src)
		})
		if t != nil {
			return t
		}
		if size == 4 {
			old = mask32Signed64(old)
		}
		h.SetReg(uint64(in.Rd), old)
	}
	h.SetPC(pc + in.Size)
	return nil
}

// amoALU combines the memory operand with rs2 for the AMO family. For the W
// variants both operands are treated as 32-bit values; the bus masks the
// stored result to the access size.
func amoALU(op uint32, size, mem, src uint64) uint64 {
	x, y := mem, src
	if size == 4 {
		x = mask32Signed64(x)
		y = mask32Signed64(y)
	}
	switch op {
	case 0x00: // amoadd
		return x + y
	case 0x01: // amoswap
		return y
	case 0x04: // amoxor
		return x ^ y
	case 0x08: // amoor
		return x | y
	case 0x0C: // amoand
		return x & y
	case 0x10: // amomin
		if int64(x) < int64(y) {
			return x
		}
		return y
	case 0x14: // amomax
		if int64(x) > int64(y) {
			return x
		}
		return y
	case 0x18: // amominu
		if x < y {
			return x
		}
		return y
	case 0x1C: // amomaxu
		if x > y {
			return x
		}
		return y
	}
	return 0
}

func (h *Hart) shamtMask() uint64 {
	if h.xlen == 32 {
		return 31
	}
	return 63
}

func (h *Hart) srl(v, sh uint64) uint64 {
	if h.xlen == 32 {
		return uint64(uint32(v) >> sh)
	}
	return v >> sh
}

func (h *Hart) sra(v, sh uint64) uint64 {
	if h.xlen == 32 {
		return uint64(int64(int32(uint32(v)) >> sh))
	}
	return uint64(int64(v) >> sh)
}

// mulDiv implements the M extension at the hart's native width.
func (h *Hart) mulDiv(funct3 uint32, x, y uint64) uint64 {
	if h.xlen == 32 {
		return mulDiv32(funct3, uint32(x), uint32(y))
	}
	switch funct3 {
	case 0: // mul
		return x * y
	case 1: // mulh
		return mulhu256(u256Signed(x), u256Signed(y))
	case 2: // mulhsu
		return mulhu256(u256Signed(x), uint256.NewInt(y))
	case 3: // mulhu
		return mulhu256(uint256.NewInt(x), uint256.NewInt(y))
	case 4: // div
		switch {
		case y == 0:
			return ^uint64(0)
		case int64(x) == -1<<63 && int64(y) == -1:
			return x
		default:
			return uint64(int64(x) / int64(y))
		}
	case 5: // divu
		if y == 0 {
			return ^uint64(0)
		}
		return x / y
	case 6: // rem
		switch {
		case y == 0:
			return x
		case int64(x) == -1<<63 && int64(y) == -1:
			return 0
		default:
			return uint64(int64(x) % int64(y))
		}
	case 7: // remu
		if y == 0 {
			return x
		}
		return x % y
	}
	return 0
}

// mulDiv32 is the 32-bit M extension, shared between RV32 and the RV64
// W-forms. Results come back sign-extended to 64 bits.
func mulDiv32(funct3 uint32, x, y uint32) uint64 {
	switch funct3 {
	case 0: // mul / mulw
		return mask32Signed64(uint64(x * y))
	case 1: // mulh
		return mask32Signed64(uint64(int64(int32(x)) * int64(int32(y)) >> 32))
	case 2: // mulhsu
		return mask32Signed64(uint64(int64(int32(x)) * int64(uint64(y)) >> 32))
	case 3: // mulhu
		return mask32Signed64(uint64(x) * uint64(y) >> 32)
	case 4: // div / divw
		switch {
		case y == 0:
			return ^uint64(0)
		case int32(x) == -1<<31 && int32(y) == -1:
			return mask32Signed64(uint64(x))
		default:
			return uint64(int64(int32(x) / int32(y)))
		}
	case 5: // divu / divuw
		if y == 0 {
			return ^uint64(0)
		}
		return mask32Signed64(uint64(x / y))
	case 6: // rem / remw
		switch {
		case y == 0:
			return mask32Signed64(uint64(x))
		case int32(x) == -1<<31 && int32(y) == -1:
			return 0
		default:
			return uint64(int64(int32(x) % int32(y)))
		}
	case 7: // remu / remuw
		if y == 0 {
			return mask32Signed64(uint64(x))
		}
		return mask32Signed64(uint64(x % y))
	}
	return 0
}

// u256Signed sign-extends a 64-bit value into a 256-bit integer so the upper
// product of the mulh family falls out of one wide multiply.
func u256Signed(v uint64) *uint256.Int {
	z := uint256.NewInt(v)
	return z.ExtendSign(z, uint256.NewInt(7))
}

func mulhu256(x, y *uint256.Int) uint64 {
	p := new(uint256.Int).Mul(x, y)
	return p.Rsh(p, 64).Uint64()
}

func bool2u64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
