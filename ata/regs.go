// Package ata defines the register-level protocol of the legacy ATA/IDE
// programmed I/O interface: register layout, status bits, command opcodes
// and the two standard controllers with their drive identities.
//
// The package knows nothing about requests or queuing. It talks to the
// hardware through the Bus port primitives, so the same code runs against
// real port I/O or a software model of the controllers.
package ata

// SectorSize is the fixed hardware transfer unit.
const SectorSize = 512

// Register offsets from a controller's I/O base.
const (
	RegData    = 0x00 // 16/32-bit data port
	RegError   = 0x01 // error status on read
	RegPrecomp = 0x01
	RegSecCnt  = 0x02 // sector count
	RegSector  = 0x03 // sector number bits 0-7
	RegCylLo   = 0x04 // sector number bits 8-15
	RegCylHi   = 0x05 // sector number bits 16-23
	RegSDH     = 0x06 // drive select and sector number bits 24-27
	RegCommand = 0x07 // command on write
	RegStatus  = 0x07 // status on read
)

// RegCtrl is the device control register, offset from the control block
// base. Writing 0 enables the completion interrupt (clears nIEN).
const RegCtrl = 0x02

// CtrlNIEN suppresses the drive's interrupt line when set in the control
// register.
const CtrlNIEN = 0x02

// Status is the contents of the status register.
type Status uint8

const (
	StatusError Status = 1 << iota
	StatusIndex
	StatusCorrected
	StatusDataRequest
	StatusSeekDone
	StatusWriteFault
	StatusReady
	StatusBusy
)

// Cmd is a command register opcode.
type Cmd uint8

const (
	CmdRead  Cmd = 0x20
	CmdWrite Cmd = 0x30
)

// SDH register encoding: a fixed pattern in the high bits, the drive
// select bit and the top four sector number bits.
const (
	SDHFixed   = 0xE0
	SDHDrive   = 0x10
	SDHLBAMask = 0x0F
)

// SDH encodes the drive-select register value for the given drive select
// bit and sector number bits 24-27.
func SDH(drive, lbaHigh uint8) uint8 {
	return SDHFixed | (drive&1)<<4 | lbaHigh&SDHLBAMask
}
