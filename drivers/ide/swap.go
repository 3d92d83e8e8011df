package ide

import (
	"fmt"

	"github.com/clv/atapio/ata"
)

// Swap transfers always move a fixed 8-sector unit.
const (
	SwapSectors = 8
	SwapBytes   = SwapSectors * ata.SectorSize
)

// ReadSwap reads the 8 sectors starting at sector into dst. It talks
// only to the swap disk on the secondary controller, bypassing the
// request queue: the whole transfer is polled under the driver lock, so
// queued requests make no progress while it runs.
//
// A drive error aborts the call immediately; the remaining sectors are
// abandoned and dst's contents past the failed sector are undefined.
func (d *Driver) ReadSwap(sector uint32, dst []byte) error {
	return d.rwSwap(sector, dst, false)
}

// WriteSwap writes the 8 sectors starting at sector from src. See
// ReadSwap for the transfer rules.
func (d *Driver) WriteSwap(sector uint32, src []byte) error {
	return d.rwSwap(sector, src, true)
}

func (d *Driver) rwSwap(sector uint32, buf []byte, write bool) error {
	if len(buf) < SwapBytes {
		panic("ide: short swap buffer")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c := ata.Secondary
	c.WaitReady(d.bus, false)
	c.SetControl(d.bus, 0)
	c.SetCount(d.bus, SwapSectors)
	c.SetLBA(d.bus, sector)
	c.SelectDrive(d.bus, ata.SwapDisk.Select(), uint8(sector>>24))

	cmd := ata.CmdRead
	if write {
		cmd = ata.CmdWrite
	}
	c.Command(d.bus, cmd)

	for i := 0; i < SwapSectors; i++ {
		if err := c.WaitReady(d.bus, true); err != nil {
			return fmt.Errorf("ide: swap sector %d: %w", sector+uint32(i), err)
		}
		p := buf[i*ata.SectorSize : (i+1)*ata.SectorSize]
		if write {
			c.WriteData(d.bus, p)
		} else {
			c.ReadData(d.bus, p)
		}
	}
	return nil
}
