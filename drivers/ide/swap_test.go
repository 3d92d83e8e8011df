package ide

import (
	"bytes"
	"errors"
	"testing"

	"github.com/clv/atapio/ata"
)

func TestSwapRoundTrip(t *testing.T) {
	d, sim := newTestDriver(t, testCfg)

	want := pattern(SwapBytes, 0x42)
	if err := d.WriteSwap(16, want); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, SwapBytes)
	if err := d.ReadSwap(16, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("swap read returned different data than written")
	}

	// Both transfers address the secondary controller and always move
	// the full 8-sector unit.
	for i, c := range sim.Trace() {
		if c.Ctrl != ata.Secondary {
			t.Fatalf("command %d went to %v", i, c.Ctrl)
		}
		if c.Sector != 16 || c.Count != SwapSectors {
			t.Fatalf("command %d: sector %d count %d", i, c.Sector, c.Count)
		}
	}

	// Swap transfers complete without the interrupt path; their stray
	// interrupts are spurious and must not disturb queued traffic.
	r := &Request{Dev: ata.FSDisk, Block: 1, Data: make([]byte, 512), Flags: Busy}
	d.Submit(r)
	if r.Flags&Valid == 0 {
		t.Fatal("queued request after swap traffic did not complete")
	}
}

func TestSwapReadAborts(t *testing.T) {
	d, sim := newTestDriver(t, testCfg)

	if err := d.WriteSwap(16, pattern(SwapBytes, 0x16)); err != nil {
		t.Fatal(err)
	}
	sim.Corrupt(ata.SwapDisk, 19)

	err := d.ReadSwap(16, make([]byte, SwapBytes))
	if !errors.Is(err, ata.ErrDrive) {
		t.Fatalf("ReadSwap returned %v, want drive error", err)
	}
}

func TestSwapWriteAborts(t *testing.T) {
	d, sim := newTestDriver(t, testCfg)

	sim.MarkBad(ata.SwapDisk, 20)

	err := d.WriteSwap(16, pattern(SwapBytes, 0x16))
	if !errors.Is(err, ata.ErrDrive) {
		t.Fatalf("WriteSwap returned %v, want drive error", err)
	}
}

func TestSwapShortBufferPanics(t *testing.T) {
	d, _ := newTestDriver(t, testCfg)
	mustPanic(t, func() { d.ReadSwap(0, make([]byte, SwapBytes-1)) })
	mustPanic(t, func() { d.WriteSwap(0, nil) })
}
