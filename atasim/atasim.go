// Package atasim is a software model of the two ATA controllers,
// implementing ata.Bus. It exists so the driver can be exercised without
// hardware: tests and host tooling attach sector media to the drive
// slots and register an interrupt handler.
//
// The model is synchronous: BUSY is never observable and commands finish
// by the time their ports are read back. Interrupts are delivered on a
// fresh goroutine, outside the caller's context like a real interrupt.
// Each written sector is checksummed, so fault injection (Corrupt,
// MarkBad) surfaces as the error status bit at the failing sector,
// exactly where a drive would raise it.
package atasim

import (
	"io"
	"sync"

	"github.com/sigurn/crc8"

	"github.com/clv/atapio/ata"
	"github.com/clv/atapio/debug"
)

var sectorCRC = crc8.MakeTable(crc8.CRC8)

// Media stores sectors. ReadAt and WriteAt offsets are byte offsets,
// always sector-aligned and sector-sized here.
type Media interface {
	io.ReaderAt
	io.WriterAt
	Sectors() uint32
}

// Cmd is one entry of the command trace: a command opcode as issued,
// with its decoded sector address and count.
type Cmd struct {
	Ctrl   ata.Controller
	Cmd    ata.Cmd
	Sector uint32
	Count  int
}

// Sim models the primary and secondary controller behind a single port
// space. Safe for concurrent use.
type Sim struct {
	mu    sync.Mutex
	ctrl  [2]*controller
	intr  func()
	trace []Cmd
}

func New() *Sim {
	return &Sim{ctrl: [2]*controller{
		{base: ata.Primary},
		{base: ata.Secondary},
	}}
}

// Attach puts m behind the dev slot. Drives without media read a zero
// status, which is what the presence probe looks for.
func (s *Sim) Attach(dev ata.Drive, m Media) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl[dev>>1].drives[dev&1] = &drive{
		media: m,
		sum:   make(map[uint32]uint8),
		bad:   make(map[uint32]bool),
	}
}

// OnInterrupt registers the handler invoked when a drive raises its
// interrupt line. Delivery is asynchronous and not suppressed while the
// handler runs, so the handler must tolerate spurious invocations.
func (s *Sim) OnInterrupt(fn func()) {
	s.mu.Lock()
	s.intr = fn
	s.mu.Unlock()
}

// Trace returns all commands issued so far, in issue order.
func (s *Sim) Trace() []Cmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := make([]Cmd, len(s.trace))
	copy(t, s.trace)
	return t
}

// Corrupt flips stored bytes of the sector so its checksum no longer
// matches. Reads fail there until the sector is rewritten.
func (s *Sim) Corrupt(dev ata.Drive, sector uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.ctrl[dev>>1].drives[dev&1]

	var buf [ata.SectorSize]byte
	d.media.ReadAt(buf[:], int64(sector)*ata.SectorSize)
	if _, ok := d.sum[sector]; !ok {
		d.sum[sector] = crc8.Checksum(buf[:], sectorCRC)
	}
	for i := range buf {
		buf[i] = ^buf[i]
	}
	d.media.WriteAt(buf[:], int64(sector)*ata.SectorSize)
}

// MarkBad makes the sector a permanent media defect: both reads and
// writes touching it fail.
func (s *Sim) MarkBad(dev ata.Drive, sector uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl[dev>>1].drives[dev&1].bad[sector] = true
}

// raise delivers an interrupt unless the controller masked it. Called
// with s.mu held, hence the goroutine.
func (s *Sim) raise(c *controller) {
	if c.nien || s.intr == nil {
		return
	}
	go s.intr()
}

type drive struct {
	media Media
	sum   map[uint32]uint8 // checksums of sectors written through the controller
	bad   map[uint32]bool
}

// faulty reports whether reading sector should raise the error bit.
func (d *drive) faulty(sector uint32, data []byte) bool {
	if d.bad[sector] {
		return true
	}
	sum, ok := d.sum[sector]
	return ok && crc8.Checksum(data, sectorCRC) != sum
}

func (d *drive) commit(sector uint32, data []byte) {
	d.media.WriteAt(data, int64(sector)*ata.SectorSize)
	for i := 0; i+ata.SectorSize <= len(data); i += ata.SectorSize {
		d.sum[sector] = crc8.Checksum(data[i:i+ata.SectorSize], sectorCRC)
		sector++
	}
}

type dir int

const (
	dirNone dir = iota
	dirRead
	dirWrite
)

type controller struct {
	base   ata.Controller
	drives [2]*drive

	selected int
	lbaHigh  uint8
	count    uint8
	lba0     uint8
	lba1     uint8
	lba2     uint8
	nien     bool

	// active transfer
	dir    dir
	buf    []byte
	off    int
	sector uint32
	faults []bool // per sector of the active transfer
}

func (c *controller) drive() *drive { return c.drives[c.selected] }

func (c *controller) status() ata.Status {
	if c.drive() == nil {
		return 0
	}
	st := ata.StatusReady | ata.StatusSeekDone
	if c.dir != dirNone && c.off < len(c.buf) {
		st |= ata.StatusDataRequest
		if c.faults[c.off/ata.SectorSize] {
			st |= ata.StatusError
		}
	}
	return st
}

// decode maps a port to its controller and register offset. ctrlBlock is
// set for the device control register.
func (s *Sim) decode(port uint16) (c *controller, reg uint16, ctrlBlock bool) {
	for _, c := range s.ctrl {
		if port >= c.base.IO && port < c.base.IO+8 {
			return c, port - c.base.IO, false
		}
		if port == c.base.Ctrl+ata.RegCtrl {
			return c, 0, true
		}
	}
	return nil, 0, false
}

func (s *Sim) In8(port uint16) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, reg, ctrlBlock := s.decode(port)
	if c == nil {
		return 0xFF // open bus
	}
	if ctrlBlock || reg == ata.RegStatus {
		return uint8(c.status())
	}
	if reg == ata.RegError {
		if c.dir != dirNone && c.off < len(c.buf) && c.faults[c.off/ata.SectorSize] {
			return 0x40 // uncorrectable data error
		}
		return 0
	}
	return 0
}

func (s *Sim) Out8(port uint16, v uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, reg, ctrlBlock := s.decode(port)
	if c == nil {
		return
	}
	if ctrlBlock {
		c.nien = v&ata.CtrlNIEN != 0
		return
	}
	switch reg {
	case ata.RegSecCnt:
		c.count = v
	case ata.RegSector:
		c.lba0 = v
	case ata.RegCylLo:
		c.lba1 = v
	case ata.RegCylHi:
		c.lba2 = v
	case ata.RegSDH:
		c.selected = int(v>>4) & 1
		c.lbaHigh = v & ata.SDHLBAMask
	case ata.RegCommand:
		s.command(c, ata.Cmd(v))
	}
}

// command latches the staged address registers and starts a transfer.
// Commands to an empty drive slot are dropped.
func (s *Sim) command(c *controller, cmd ata.Cmd) {
	d := c.drive()
	if d == nil {
		return
	}
	n := int(c.count)
	if n == 0 {
		n = 256
	}
	sector := uint32(c.lbaHigh)<<24 | uint32(c.lba2)<<16 |
		uint32(c.lba1)<<8 | uint32(c.lba0)

	s.trace = append(s.trace, Cmd{c.base, cmd, sector, n})

	c.sector = sector
	c.buf = make([]byte, n*ata.SectorSize)
	c.off = 0
	c.faults = make([]bool, n)

	switch cmd {
	case ata.CmdRead:
		c.dir = dirRead
		d.media.ReadAt(c.buf, int64(sector)*ata.SectorSize)
		for i := range c.faults {
			p := c.buf[i*ata.SectorSize : (i+1)*ata.SectorSize]
			c.faults[i] = d.faulty(sector+uint32(i), p)
		}
		s.raise(c)
	case ata.CmdWrite:
		c.dir = dirWrite
		for i := range c.faults {
			c.faults[i] = d.bad[sector+uint32(i)]
		}
	default:
		c.dir = dirNone
	}
}

func (s *Sim) Ins32(port uint16, p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	debug.Assert(len(p)%4 == 0, "data transfer not 32-bit sized")

	c, reg, ctrlBlock := s.decode(port)
	if c == nil || ctrlBlock || reg != ata.RegData || c.dir != dirRead {
		return
	}
	n := copy(p, c.buf[c.off:])
	c.off += n
	if c.off == len(c.buf) {
		c.dir = dirNone
	}
}

func (s *Sim) Outs32(port uint16, p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	debug.Assert(len(p)%4 == 0, "data transfer not 32-bit sized")

	c, reg, ctrlBlock := s.decode(port)
	if c == nil || ctrlBlock || reg != ata.RegData || c.dir != dirWrite {
		return
	}
	n := copy(c.buf[c.off:], p)
	c.off += n
	if c.off == len(c.buf) {
		c.drive().commit(c.sector, c.buf)
		c.dir = dirNone
		s.raise(c)
	}
}
