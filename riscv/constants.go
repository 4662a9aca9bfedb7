package riscv

// Base instruction opcodes (bits [6:0] of the 32-bit encoding).
const (
	OpcodeLoad   = 0x03 // 000_0011
	OpcodeFence  = 0x0F // 000_1111
	OpcodeOpImm  = 0x13 // 001_0011
	OpcodeAuipc  = 0x17 // 001_0111
	OpcodeOpImm32 = 0x1B // 001_1011: 32-bit immediate arithmetic (RV64)
	OpcodeStore  = 0x23 // 010_0011
	OpcodeAmo    = 0x2F // 010_1111
	OpcodeOp     = 0x33 // 011_0011
	OpcodeLui    = 0x37 // 011_0111
	OpcodeOp32   = 0x3B // 011_1011: 32-bit register arithmetic (RV64)
	OpcodeBranch = 0x63 // 110_0011
	OpcodeJalr   = 0x67 // 110_0111
	OpcodeJal    = 0x6F // 110_1111
	OpcodeSystem = 0x73 // 111_0011
)

// Exception cause codes (mcause with the interrupt bit clear).
const (
	CauseInstrAddrMisaligned = 0
	CauseInstrAccessFault    = 1
	CauseIllegalInstruction  = 2
	CauseBreakpoint          = 3
	CauseLoadAddrMisaligned  = 4
	CauseLoadAccessFault     = 5
	CauseStoreAddrMisaligned = 6
	CauseStoreAccessFault    = 7
	CauseEnvCallFromU        = 8
	CauseEnvCallFromS        = 9
	CauseEnvCallFromM        = 11
)

// Interrupt cause codes / mip, mie bit positions.
const (
	IntSoftwareS = 1
	IntSoftwareM = 3
	IntTimerS    = 5
	IntTimerM    = 7
	IntExternalS = 9
	IntExternalM = 11
)

// Privilege modes as encoded in mstatus.MPP.
const (
	PrivU = 0
	PrivS = 1
	PrivM = 3
)

// CSR numbers. Machine-mode baseline only; everything else is unimplemented
// and reads/writes trap with illegal-instruction.
const (
	CSRMStatus   = 0x300
	CSRMisa      = 0x301
	CSRMie       = 0x304
	CSRMtvec     = 0x305
	CSRMCounterEn= 0x306
	CSRMScratch  = 0x340
	CSRMepc      = 0x341
	CSRMcause    = 0x342
	CSRMtval     = 0x343
	CSRMip       = 0x344
	CSRMCycle    = 0xB00
	CSRMInstret  = 0xB02
	CSRCycle     = 0xC00
	CSRTime      = 0xC01
	CSRInstret   = 0xC02
	CSRMVendorID = 0xF11
	CSRMArchID   = 0xF12
	CSRMImpID    = 0xF13
	CSRMHartID   = 0xF14
)

// mstatus bit positions (M-mode subset).
const (
	MStatusMIE  = 1 << 3
	MStatusMPIE = 1 << 7
	MStatusMPPShift = 11
	MStatusMPPMask  = 3 << MStatusMPPShift
)

// misa extension bits. The two top bits of misa encode MXL (1 = 32-bit, 2 = 64-bit).
const (
	MisaExtA = 1 << 0
	MisaExtC = 1 << 2
	MisaExtI = 1 << 8
	MisaExtM = 1 << 12
)

// SBI legacy extension IDs (register a7) and the v0.2+ base extension,
// serviced by the SEE on behalf of the guest.
const (
	SBIConsolePutchar = 0x01
	SBIConsoleGetchar = 0x02
	SBIShutdown       = 0x08
	SBIBaseExt        = 0x10

	SBIFnGetSpecVersion = 0x0

	SBISpecVersion = 1 << 24 // v1.0

	SBISuccess      = 0
	SBIErrFailed    = -1
	SBIErrNotSupported = -2
)

// SBI calling convention registers.
const (
	RegZero = 0
	RegRA   = 1
	RegSP   = 2
	RegA0   = 10
	RegA1   = 11
	RegA2   = 12
	RegA6   = 16
	RegA7   = 17
)
