package ata

import (
	"errors"
	"fmt"
)

// Controller is one of the two independent ATA interfaces, identified by
// its I/O and control block base ports.
type Controller struct {
	IO   uint16
	Ctrl uint16
}

var (
	Primary   = Controller{IO: 0x1F0, Ctrl: 0x3F4}
	Secondary = Controller{IO: 0x170, Ctrl: 0x374}
)

// Drive identifies one of the four possible drives. The low bit is the
// drive select bit on its controller.
type Drive uint8

const (
	PrimaryMaster Drive = iota
	PrimarySlave
	SecondaryMaster
	SecondarySlave
)

// The two drives this driver is interested in: the filesystem disk and
// the swap disk.
const (
	FSDisk   = PrimarySlave
	SwapDisk = SecondaryMaster
)

func (d Drive) Controller() Controller {
	if d >= SecondaryMaster {
		return Secondary
	}
	return Primary
}

// Select returns the drive select bit for the SDH register.
func (d Drive) Select() uint8 { return uint8(d) & 1 }

func (d Drive) String() string {
	switch d {
	case PrimaryMaster:
		return "primary-master"
	case PrimarySlave:
		return "primary-slave"
	case SecondaryMaster:
		return "secondary-master"
	case SecondarySlave:
		return "secondary-slave"
	}
	return fmt.Sprintf("drive(%d)", uint8(d))
}

// ErrDrive reports that the drive raised its error or write fault status
// bit after a transfer.
var ErrDrive = errors.New("drive signaled error")

func (c Controller) Status(b Bus) Status {
	return Status(b.In8(c.IO + RegStatus))
}

// WaitReady busy-polls the status register until the drive deasserts
// BUSY. There is no bound on the poll: a drive that never becomes ready
// hangs the caller. With checkErr set, a fault or error bit in the final
// status is reported as ErrDrive.
func (c Controller) WaitReady(b Bus, checkErr bool) error {
	var s Status
	for s = c.Status(b); s&StatusBusy != 0; s = c.Status(b) {
	}
	if checkErr && s&(StatusWriteFault|StatusError) != 0 {
		return fmt.Errorf("%w (status %#02x)", ErrDrive, uint8(s))
	}
	return nil
}

// SetControl writes the device control register.
func (c Controller) SetControl(b Bus, v uint8) {
	b.Out8(c.Ctrl+RegCtrl, v)
}

// SetCount writes the sector count register.
func (c Controller) SetCount(b Bus, n uint8) {
	b.Out8(c.IO+RegSecCnt, n)
}

// SetLBA spreads the low 24 bits of the sector number across the three
// address registers. Bits 24-27 go into SDH via SelectDrive.
func (c Controller) SetLBA(b Bus, sector uint32) {
	b.Out8(c.IO+RegSector, uint8(sector))
	b.Out8(c.IO+RegCylLo, uint8(sector>>8))
	b.Out8(c.IO+RegCylHi, uint8(sector>>16))
}

// SelectDrive writes the SDH register, choosing the drive and supplying
// sector number bits 24-27.
func (c Controller) SelectDrive(b Bus, drive, lbaHigh uint8) {
	b.Out8(c.IO+RegSDH, SDH(drive, lbaHigh))
}

// Command writes a command opcode, starting the transfer.
func (c Controller) Command(b Bus, cmd Cmd) {
	b.Out8(c.IO+RegCommand, uint8(cmd))
}

// ReadData pulls len(p) bytes in from the data port.
func (c Controller) ReadData(b Bus, p []byte) {
	b.Ins32(c.IO+RegData, p)
}

// WriteData pushes len(p) bytes out over the data port.
func (c Controller) WriteData(b Bus, p []byte) {
	b.Outs32(c.IO+RegData, p)
}
