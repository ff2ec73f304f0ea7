// Package kernel wires every singleton subsystem together and drives the
// init -> steady -> shutdown lifecycle spec.md §9 calls for, the way
// biscuit/src/kernel/chentry.go patches a kernel image as one step of a
// larger build-and-boot pipeline, and the way Pintos's threads/init.c
// sequences its own subsystem bring-up. There is no bootloader or real
// disk controller here, so "boot" means opening (or formatting) the
// backing disk image files named in internal/config and constructing
// every package's singleton in dependency order.
package kernel

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"kcore/internal/block"
	"kcore/internal/config"
	"kcore/internal/dir"
	"kcore/internal/fat"
	"kcore/internal/frame"
	"kcore/internal/inode"
	"kcore/internal/klog"
	"kcore/internal/kstats"
	"kcore/internal/metrics"
	"kcore/internal/sched"
	"kcore/internal/swap"
	"kcore/internal/sysgate"
	"kcore/internal/vpath"
)

func init() {
	// A real boot wires fd 0/1 to the console driver; this simulator's
	// stand-in is the host process's own stdio.
	sysgate.Console = os.Stdout
	sysgate.ConsoleIn = os.Stdin
}

// Kernel is the fully assembled simulator: every subsystem singleton
// plus the ambient logging/metrics layers wrapping them.
type Kernel struct {
	Cfg config.Config
	Log *klog.Logger

	SessionID string

	fsDev   *block.FileDevice
	swapDev *block.MemDevice

	Vol      *fat.Volume
	Frames   *frame.Table
	Swap     *swap.Table
	Inodes   *inode.Table
	Resolver *vpath.Resolver
	Sched    *sched.Scheduler
	Gate     *sysgate.Kernel

	Metrics *metrics.Registry

	halted chan struct{}
}

// Boot constructs every subsystem named in cfg. If the filesystem image
// named by cfg.FSImage does not already hold a formatted volume, Boot
// formats one, the way ufs.MkDisk does for a brand-new biscuit image.
func Boot(cfg config.Config) (*Kernel, error) {
	sessionID := uuid.NewString()
	log := klog.New("kernel", cfg.LogPath, cfg.LogLevel)
	log.Infof("booting session %s", sessionID)

	kstats.Global.Reset()

	fsDev, err := block.OpenFileDevice(cfg.FSImage, cfg.FSSectors)
	if err != nil {
		return nil, fmt.Errorf("kernel: opening fs image: %w", err)
	}

	vol, ferr := fat.Open(fsDev)
	if ferr != 0 {
		log.Infof("formatting fresh volume at %s", cfg.FSImage)
		vol, ferr = fat.Format(fsDev)
		if ferr != 0 {
			return nil, fmt.Errorf("kernel: formatting fs image: %s", ferr.Error())
		}
	}

	swapDev := block.NewMemDevice(cfg.SwapSectors)

	frames := frame.New(cfg.FramePoolSize)
	slots := swap.New(swapDev)

	var policy sched.Policy
	if cfg.SchedPolicy == config.SchedMLFQS {
		policy = sched.PolicyMLFQS
	} else {
		policy = sched.PolicyPriorityDonation
	}
	scheduler := sched.New(policy)

	inodes := inode.NewTable(scheduler, vol)
	resolver := vpath.New(inodes, fat.RootDirCluster)
	gate := sysgate.NewKernel(scheduler, frames, slots, vol, inodes, resolver)

	k := &Kernel{
		Cfg: cfg, Log: log, SessionID: sessionID,
		fsDev: fsDev, swapDev: swapDev,
		Vol: vol, Frames: frames, Swap: slots, Inodes: inodes,
		Resolver: resolver, Sched: scheduler, Gate: gate,
		Metrics: metrics.NewRegistry(kstats.Global),
		halted:   make(chan struct{}),
	}
	gate.OnHalt = k.shutdownRequested
	log.Infof("boot complete: %d frames, %d fs sectors, policy=%s", cfg.FramePoolSize, cfg.FSSectors, cfg.SchedPolicy)
	return k, nil
}

// MkRoot formats the root directory's `.`/`..` entries on a freshly
// formatted (hence empty) volume. Callers that opened an existing volume
// should skip this.
func (k *Kernel) MkRoot(t *sched.Thread) error {
	if err := dir.Create(k.Inodes, t, fat.RootDirCluster, fat.RootDirCluster); err != 0 {
		return fmt.Errorf("kernel: creating root directory: %s", err.Error())
	}
	return nil
}

func (k *Kernel) shutdownRequested() {
	close(k.halted)
}

// Wait blocks the caller until the HALT syscall has requested shutdown.
func (k *Kernel) Wait() {
	<-k.halted
}

// Shutdown is the "shutdown" phase of the lifecycle: flush the FAT and
// close the backing files, matching Pintos's filesys_done / biscuit's
// ufs.ShutdownFS.
func (k *Kernel) Shutdown() error {
	k.Log.Infof("shutting down session %s", k.SessionID)
	if err := k.Vol.Close(); err != 0 {
		return fmt.Errorf("kernel: flushing volume: %s", err.Error())
	}
	if err := k.fsDev.Close(); err != nil {
		return fmt.Errorf("kernel: closing fs image: %w", err)
	}
	return nil
}
