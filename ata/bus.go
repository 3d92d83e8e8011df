package ata

// Bus provides the port I/O primitives everything else is built on. In8
// and Out8 access a single byte-wide register. Ins32 and Outs32 are the
// repeated 32-bit transfers used on the data port; len(p) must be a
// multiple of 4.
//
// Implementations must be safe for concurrent use: the interrupt path and
// blocked submitters access the bus from different goroutines.
type Bus interface {
	In8(port uint16) uint8
	Out8(port uint16, v uint8)
	Ins32(port uint16, p []byte)
	Outs32(port uint16, p []byte)
}
