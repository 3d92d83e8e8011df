package ide

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clv/atapio/ata"
	"github.com/clv/atapio/atasim"
)

const testSectors = 4096

var testCfg = Config{BlockSize: 512, Blocks: 1024}

func newTestSim() *atasim.Sim {
	sim := atasim.New()
	sim.Attach(ata.FSDisk, atasim.NewMemDisk(testSectors))
	sim.Attach(ata.SwapDisk, atasim.NewMemDisk(testSectors))
	return sim
}

func newTestDriver(t *testing.T, cfg Config) (*Driver, *atasim.Sim) {
	t.Helper()
	sim := newTestSim()
	d, err := New(sim, cfg)
	if err != nil {
		t.Fatal(err)
	}
	sim.OnInterrupt(d.ServiceInterrupt)
	return d, sim
}

func queueLen(d *Driver) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for ", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func pattern(n int, seed byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = seed + byte(i)
	}
	return p
}

func TestRoundTrip(t *testing.T) {
	tests := map[string]Config{
		"1sector":  {BlockSize: 512, Blocks: 1024},
		"2sectors": {BlockSize: 1024, Blocks: 1024},
		"7sectors": {BlockSize: 3584, Blocks: 512},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			d, _ := newTestDriver(t, cfg)
			want := pattern(cfg.BlockSize, 0x51)

			w := &Request{
				Dev:   ata.FSDisk,
				Block: 5,
				Data:  append([]byte(nil), want...),
				Flags: Busy | Dirty,
			}
			d.Submit(w)
			if w.Flags&Valid == 0 || w.Flags&Dirty != 0 {
				t.Fatalf("write flags after submit: %#x", w.Flags)
			}

			r := &Request{
				Dev:   ata.FSDisk,
				Block: 5,
				Data:  make([]byte, cfg.BlockSize),
				Flags: Busy,
			}
			d.Submit(r)
			if r.Flags&Valid == 0 {
				t.Fatalf("read flags after submit: %#x", r.Flags)
			}
			if !bytes.Equal(r.Data, want) {
				t.Fatal("read returned different data than written")
			}
		})
	}
}

// Completions must come back in submission order, with only the queue
// head ever started on the hardware. Interrupt delivery is gated so the
// queue can be filled deterministically.
func TestFIFOOrder(t *testing.T) {
	sim := newTestSim()
	d, err := New(sim, testCfg)
	if err != nil {
		t.Fatal(err)
	}
	gate := make(chan struct{})
	sim.OnInterrupt(func() {
		<-gate
		d.ServiceInterrupt()
	})

	var wg sync.WaitGroup
	blocks := []uint32{7, 3, 11}
	for i, blk := range blocks {
		req := &Request{
			Dev:   ata.FSDisk,
			Block: blk,
			Data:  pattern(testCfg.BlockSize, byte(blk)),
			Flags: Busy | Dirty,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Submit(req)
		}()
		n := i + 1
		waitFor(t, "queue to grow", func() bool { return queueLen(d) == n })
	}

	// Only the first submission may have touched the hardware.
	if n := len(sim.Trace()); n != 1 {
		t.Fatalf("%d commands started with queue backed up, want 1", n)
	}

	for range blocks {
		gate <- struct{}{}
	}
	wg.Wait()

	trace := sim.Trace()
	if len(trace) != len(blocks) {
		t.Fatalf("%d commands issued, want %d", len(trace), len(blocks))
	}
	for i, c := range trace {
		if c.Ctrl != ata.Primary || c.Cmd != ata.CmdWrite {
			t.Fatalf("command %d: %v %#x", i, c.Ctrl, c.Cmd)
		}
		if c.Sector != blocks[i] {
			t.Fatalf("command %d started sector %d, want %d", i, c.Sector, blocks[i])
		}
	}
}

func TestSpuriousInterrupt(t *testing.T) {
	d, sim := newTestDriver(t, testCfg)

	d.ServiceInterrupt()

	if n := queueLen(d); n != 0 {
		t.Fatalf("queue length %d after spurious interrupt", n)
	}
	if n := len(sim.Trace()); n != 0 {
		t.Fatalf("%d commands issued by spurious interrupt", n)
	}

	// Driver still works afterwards.
	r := &Request{Dev: ata.FSDisk, Block: 0, Data: make([]byte, 512), Flags: Busy}
	d.Submit(r)
	if r.Flags&Valid == 0 {
		t.Fatal("request did not complete")
	}
}

func mustPanic(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	f()
}

func TestSubmitContract(t *testing.T) {
	tests := map[string]struct {
		req  *Request
		prep func(d *Driver)
	}{
		"notBusy": {
			req: &Request{Dev: ata.FSDisk, Data: make([]byte, 512)},
		},
		"nothingToDo": {
			req: &Request{Dev: ata.FSDisk, Data: make([]byte, 512), Flags: Busy | Valid},
		},
		"absentDisk": {
			req:  &Request{Dev: ata.FSDisk, Data: make([]byte, 512), Flags: Busy},
			prep: func(d *Driver) { d.haveFSDisk = false },
		},
		"blockOutOfRange": {
			req: &Request{Dev: ata.FSDisk, Block: testCfg.Blocks,
				Data: make([]byte, 512), Flags: Busy},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			d, sim := newTestDriver(t, testCfg)
			before := len(sim.Trace())
			if tc.prep != nil {
				tc.prep(d)
			}
			mustPanic(t, func() { d.Submit(tc.req) })
			if name == "absentDisk" && len(sim.Trace()) != before {
				t.Fatal("registers touched before the absent disk was rejected")
			}
		})
	}
}

// A hardware error during a queued read is masked: the request comes
// back Valid with its buffer untouched, indistinguishable from success.
// This test pins the behavior down rather than endorsing it; fixing it
// would mean propagating an error from ServiceInterrupt to the
// submitter.
func TestQueuedReadErrorMasked(t *testing.T) {
	d, sim := newTestDriver(t, testCfg)

	w := &Request{
		Dev:   ata.FSDisk,
		Block: 9,
		Data:  pattern(512, 0x09),
		Flags: Busy | Dirty,
	}
	d.Submit(w)
	sim.Corrupt(ata.FSDisk, 9)

	sentinel := pattern(512, 0xAA)
	r := &Request{
		Dev:   ata.FSDisk,
		Block: 9,
		Data:  append([]byte(nil), sentinel...),
		Flags: Busy,
	}
	d.Submit(r)

	if r.Flags&Valid == 0 || r.Flags&Dirty != 0 {
		t.Fatalf("flags after failed read: %#x", r.Flags)
	}
	if !bytes.Equal(r.Data, sentinel) {
		t.Fatal("buffer was filled despite the drive error")
	}
}

func TestProbeAbsentDisks(t *testing.T) {
	tests := map[string]struct {
		attach []ata.Drive
		want   error
	}{
		"noFSDisk":   {attach: []ata.Drive{ata.SwapDisk}, want: ErrNoFSDisk},
		"noSwapDisk": {attach: []ata.Drive{ata.FSDisk}, want: ErrNoSwapDisk},
		"noDisks":    {attach: nil, want: ErrNoFSDisk},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			sim := atasim.New()
			for _, dev := range tc.attach {
				sim.Attach(dev, atasim.NewMemDisk(testSectors))
			}
			if _, err := New(sim, testCfg); !errors.Is(err, tc.want) {
				t.Fatalf("New returned %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := map[string]Config{
		"zeroBlockSize":  {BlockSize: 0, Blocks: 16},
		"unalignedBlock": {BlockSize: 700, Blocks: 16},
		"tooManySectors": {BlockSize: 4096, Blocks: 16},
		"zeroExtent":     {BlockSize: 512, Blocks: 0},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := New(newTestSim(), cfg); err == nil {
				t.Fatal("New accepted invalid config")
			}
		})
	}
}

// Queued traffic and swap traffic share one lock; mix them from several
// goroutines and make sure every round-trip still holds.
func TestConcurrentMixed(t *testing.T) {
	d, _ := newTestDriver(t, testCfg)

	const workers = 4
	const rounds = 16

	var wg sync.WaitGroup
	errc := make(chan error, workers+1)

	for w := 0; w < workers; w++ {
		base := uint32(w * 64)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := uint32(0); j < rounds; j++ {
				block := base + j
				want := pattern(512, byte(block))
				wr := &Request{
					Dev:   ata.FSDisk,
					Block: block,
					Data:  append([]byte(nil), want...),
					Flags: Busy | Dirty,
				}
				d.Submit(wr)
				rd := &Request{
					Dev:   ata.FSDisk,
					Block: block,
					Data:  make([]byte, 512),
					Flags: Busy,
				}
				d.Submit(rd)
				if !bytes.Equal(rd.Data, want) {
					errc <- errors.New("queued round-trip mismatch")
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < rounds; j++ {
			sector := uint32(1024 + j*SwapSectors)
			want := pattern(SwapBytes, byte(j))
			if err := d.WriteSwap(sector, want); err != nil {
				errc <- err
				return
			}
			got := make([]byte, SwapBytes)
			if err := d.ReadSwap(sector, got); err != nil {
				errc <- err
				return
			}
			if !bytes.Equal(got, want) {
				errc <- errors.New("swap round-trip mismatch")
				return
			}
		}
	}()

	wg.Wait()
	close(errc)
	for err := range errc {
		t.Error(err)
	}
}
