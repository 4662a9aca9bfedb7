package emu

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/hartlab/rvemu/riscv"
)

// Tracer emits one log line per executed instruction. It is costly and meant
// for debugging short runs; the formatting is lazy so a filtered-out trace
// level costs little.
type Tracer struct {
	Log log.Logger
}

func (t *Tracer) trace(h *Hart, pc uint64, in Instruction) {
	t.Log.Trace("exec",
		"hart", h.id,
		"pc", hexU64(pc),
		"insn", hexU64(uint64(in.Raw)),
		"rd", riscv.RegName(uint64(in.Rd)),
		"rs1", riscv.RegName(uint64(in.Rs1)),
		"rs1val", hexU64(h.Reg(uint64(in.Rs1))),
		"rs2val", hexU64(h.Reg(uint64(in.Rs2))),
		"imm", hexU64(in.Imm),
	)
}

// hexU64 lazy-formats integer attributes for logging.
type hexU64 uint64

func (v hexU64) String() string {
	return fmt.Sprintf("%016x", uint64(v))
}

func (v hexU64) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}
