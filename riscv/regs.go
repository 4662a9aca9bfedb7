package riscv

// ABI names of the 32 integer registers, indexed by register number.
var regNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// RegName returns the ABI name of register x<i>, or "?" out of range.
func RegName(i uint64) string {
	if i >= 32 {
		return "?"
	}
	return regNames[i]
}

// RegNum resolves an ABI name back to its register index, or -1 if unknown.
func RegNum(name string) int {
	for i, n := range regNames {
		if n == name {
			return i
		}
	}
	return -1
}
