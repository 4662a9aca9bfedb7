package emu

import (
	"io"
)

// 8250/16550 register offsets, one byte each.
const (
	UartSize = 0x100

	uartRHR = 0 // read: receive holding / write: transmit holding
	uartIER = 1 // interrupt enable
	uartFCR = 2 // FIFO control (write) / interrupt status (read)
	uartLCR = 3 // line control
	uartMCR = 4 // modem control
	uartLSR = 5 // line status
)

const (
	uartLSRDataReady = 0x01
	uartLSRTxIdle    = 0x60
	uartIERRxEnable  = 0x01
)

// UartIRQ is the PLIC source number the console interrupts on.
const UartIRQ = 10

// UART emulates an 8250 console: a byte-wide sink towards an io.Writer, and
// for test harnesses also a source fed by an io.Reader. Bytes are emitted in
// store order with no buffering beyond the writer's own.
type UART struct {
	out io.Writer
	in  io.Reader

	rx     byte
	rxFull bool
	ier    byte
	lcr    byte
	mcr    byte
}

func NewUART(out io.Writer, in io.Reader) *UART {
	return &UART{out: out, in: in}
}

func (u *UART) Read(addr uint64, size uint64) (uint64, *Trap) {
	if size != 1 {
		return 0, loadFault(addr)
	}
	switch addr {
	case uartRHR:
		u.fill()
		if !u.rxFull {
			return 0, nil
		}
		u.rxFull = false
		return uint64(u.rx), nil
	case uartIER:
		return uint64(u.ier), nil
	case uartFCR:
		return 0, nil
	case uartLCR:
		return uint64(u.lcr), nil
	case uartMCR:
		return uint64(u.mcr), nil
	case uartLSR:
		u.fill()
		v := uint64(uartLSRTxIdle)
		if u.rxFull {
			v |= uartLSRDataReady
		}
		return v, nil
	default:
		return 0, loadFault(addr)
	}
}

func (u *UART) Write(addr uint64, size uint64, v uint64) *Trap {
	if size != 1 {
		return storeFault(addr)
	}
	switch addr {
	case uartRHR:
		u.Putchar(byte(v))
	case uartIER:
		u.ier = byte(v)
	case uartFCR:
		// FIFOs are not modeled; accept the write
	case uartLCR:
		u.lcr = byte(v)
	case uartMCR:
		u.mcr = byte(v)
	default:
		return storeFault(addr)
	}
	return nil
}

// Putchar emits one byte to the console sink. Also the SEE's console target.
func (u *UART) Putchar(b byte) {
	if u.out != nil {
		u.out.Write([]byte{b})
	}
}

// Getchar pops one byte from the console source, or -1 when none is pending.
func (u *UART) Getchar() int {
	u.fill()
	if !u.rxFull {
		return -1
	}
	u.rxFull = false
	return int(u.rx)
}

// fill pulls the next input byte into the one-byte receive holding register.
func (u *UART) fill() {
	if u.rxFull || u.in == nil {
		return
	}
	var buf [1]byte
	if n, _ := u.in.Read(buf[:]); n == 1 {
		u.rx = buf[0]
		u.rxFull = true
	}
}

// IRQPending reports the rx interrupt line into the PLIC.
func (u *UART) IRQPending() bool {
	if u.ier&uartIERRxEnable == 0 {
		return false
	}
	u.fill()
	return u.rxFull
}
