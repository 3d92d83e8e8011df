//go:build linux

package ata

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PortBus is a Bus backed by real port I/O through /dev/port. Requires
// root. Register access works on any x86 machine; the data port is
// transferred one byte at a time, so bulk data only works against devices
// configured for 8-bit PIO. Intended for register-level bring-up and
// probing, not throughput.
type PortBus struct {
	fd int
}

func OpenPortBus() (*PortBus, error) {
	fd, err := unix.Open("/dev/port", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/port: %w", err)
	}
	return &PortBus{fd: fd}, nil
}

func (p *PortBus) Close() error {
	return unix.Close(p.fd)
}

func (p *PortBus) In8(port uint16) uint8 {
	var b [1]byte
	if _, err := unix.Pread(p.fd, b[:], int64(port)); err != nil {
		return 0xFF
	}
	return b[0]
}

func (p *PortBus) Out8(port uint16, v uint8) {
	b := [1]byte{v}
	unix.Pwrite(p.fd, b[:], int64(port))
}

func (p *PortBus) Ins32(port uint16, buf []byte) {
	for i := range buf {
		buf[i] = p.In8(port)
	}
}

func (p *PortBus) Outs32(port uint16, buf []byte) {
	for i := range buf {
		p.Out8(port, buf[i])
	}
}
