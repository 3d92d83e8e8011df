package atasim

import (
	"io"

	"github.com/clv/atapio/ata"
)

// MemDisk is Media held entirely in memory, zero-filled.
type MemDisk struct {
	data []byte
}

func NewMemDisk(sectors uint32) *MemDisk {
	return &MemDisk{data: make([]byte, int(sectors)*ata.SectorSize)}
}

func (d *MemDisk) Sectors() uint32 {
	return uint32(len(d.data) / ata.SectorSize)
}

func (d *MemDisk) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(d.data)) {
		return 0, io.EOF
	}
	n := copy(p, d.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *MemDisk) WriteAt(p []byte, off int64) (int, error) {
	if off >= int64(len(d.data)) {
		return 0, io.ErrShortWrite
	}
	n := copy(d.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// ReadWriterAt is the random access half of a raw disk image.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// FileDisk is Media backed by a raw image, typically an *os.File.
type FileDisk struct {
	f       ReadWriterAt
	sectors uint32
}

func NewFileDisk(f ReadWriterAt, sectors uint32) *FileDisk {
	return &FileDisk{f: f, sectors: sectors}
}

func (d *FileDisk) Sectors() uint32 { return d.sectors }

func (d *FileDisk) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

func (d *FileDisk) WriteAt(p []byte, off int64) (int, error) {
	return d.f.WriteAt(p, off)
}
