// Command idecheck exercises the ide driver against simulated
// controllers backed by raw disk images. It exists to sanity check the
// driver end to end from a host machine: create two images, attach them
// as the filesystem and swap disks and run transfers through both the
// queued and the swap path.
package main

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/spf13/cobra"

	"github.com/clv/atapio/ata"
	"github.com/clv/atapio/atasim"
	"github.com/clv/atapio/drivers/ide"
)

func main() {
	root := &cobra.Command{
		Use:           "idecheck",
		Short:         "Exercise the PIO ATA driver against disk images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(mkimageCmd(), exerciseCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func mkimageCmd() *cobra.Command {
	var sectors int64
	cmd := &cobra.Command{
		Use:   "mkimage PATH",
		Short: "Create a zero-filled raw disk image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := diskfs.Create(args[0], sectors*ata.SectorSize,
				diskfs.Raw, diskfs.SectorSize512)
			if err != nil {
				return err
			}
			if err := d.File.Close(); err != nil {
				return err
			}
			fmt.Printf("%s: %d sectors\n", args[0], sectors)
			return nil
		},
	}
	cmd.Flags().Int64Var(&sectors, "sectors", 8192, "image size in 512-byte sectors")
	return cmd
}

func exerciseCmd() *cobra.Command {
	var blockSize int
	var rounds int
	cmd := &cobra.Command{
		Use:   "exercise FSIMG SWAPIMG",
		Short: "Run queued and swap round-trips through the driver",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsImg, err := diskfs.Open(args[0])
			if err != nil {
				return err
			}
			defer fsImg.File.Close()
			swapImg, err := diskfs.Open(args[1])
			if err != nil {
				return err
			}
			defer swapImg.File.Close()

			sim := atasim.New()
			sim.Attach(ata.FSDisk, atasim.NewFileDisk(
				fsImg.File, uint32(fsImg.Size/ata.SectorSize)))
			sim.Attach(ata.SwapDisk, atasim.NewFileDisk(
				swapImg.File, uint32(swapImg.Size/ata.SectorSize)))

			cfg := ide.Config{
				BlockSize: blockSize,
				Blocks:    uint32(fsImg.Size / int64(blockSize)),
			}
			drv, err := ide.New(sim, cfg)
			if err != nil {
				return err
			}
			sim.OnInterrupt(drv.ServiceInterrupt)

			if err := exercise(drv, cfg, swapImg.Size, rounds); err != nil {
				return err
			}
			fmt.Printf("ok: %d queued and %d swap round-trips\n", rounds, rounds)
			return nil
		},
	}
	cmd.Flags().IntVar(&blockSize, "bs", 512, "filesystem block size in bytes")
	cmd.Flags().IntVar(&rounds, "rounds", 64, "round-trips per path")
	return cmd
}

func exercise(drv *ide.Driver, cfg ide.Config, swapSize int64, rounds int) error {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < rounds; i++ {
		block := uint32(rng.Intn(int(cfg.Blocks)))
		want := make([]byte, cfg.BlockSize)
		rng.Read(want)

		w := &ide.Request{
			Dev:   ata.FSDisk,
			Block: block,
			Data:  append([]byte(nil), want...),
			Flags: ide.Busy | ide.Dirty,
		}
		drv.Submit(w)

		r := &ide.Request{
			Dev:   ata.FSDisk,
			Block: block,
			Data:  make([]byte, cfg.BlockSize),
			Flags: ide.Busy,
		}
		drv.Submit(r)
		if !bytes.Equal(r.Data, want) {
			return fmt.Errorf("block %d: read back wrong data", block)
		}
	}

	swapSectors := uint32(swapSize / ata.SectorSize)
	for i := 0; i < rounds; i++ {
		sector := uint32(rng.Intn(int(swapSectors-ide.SwapSectors))) &^ 7
		want := make([]byte, ide.SwapBytes)
		rng.Read(want)

		if err := drv.WriteSwap(sector, want); err != nil {
			return err
		}
		got := make([]byte, ide.SwapBytes)
		if err := drv.ReadSwap(sector, got); err != nil {
			return err
		}
		if !bytes.Equal(got, want) {
			return fmt.Errorf("swap sector %d: read back wrong data", sector)
		}
	}
	return nil
}
