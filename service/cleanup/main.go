package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"eiprobe/controller/sweeper"
	"eiprobe/harness"
)

type SweepArgs struct {
	Prefix      string        `arg:"--prefix,env:SWEEP_PREFIX" default:"mx-model-test" json:"prefix,omitempty"`
	MaxAge      time.Duration `arg:"--max-age,env:SWEEP_MAX_AGE" default:"2h" json:"max_age,omitempty" help:"endpoints older than this are deleted"`
	Parallelism int           `arg:"--parallelism,env:SWEEP_PARALLELISM" default:"4" json:"parallelism,omitempty"`
	DryRun      bool          `arg:"--dry-run" json:"dry_run,omitempty"`
}

func (args SweepArgs) options() sweeper.Options {
	return sweeper.Options{
		Prefix:      args.Prefix,
		MaxAge:      args.MaxAge,
		Parallelism: args.Parallelism,
		DryRun:      args.DryRun,
	}
}

func main() {
	var flags struct {
		harness.HarnessArgs
		SweepArgs
	}
	arg.MustParse(&flags)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	h, err := harness.CreateFromArgs(&flags.HarnessArgs)
	if err != nil {
		log.Fatalf("Failed to setup harness: %v", err)
	}
	defer h.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	report, err := sweeper.Sweep(ctx, h, flags.options())
	h.Logger.Info("sweep done",
		zap.Strings("leaked", report.Leaked),
		zap.Strings("deleted", report.Deleted),
		zap.Bool("dry_run", flags.DryRun),
	)
	if err != nil {
		h.Logger.Error("sweep failed", zap.Error(err))
		stop()
		h.Close()
		os.Exit(1)
	}
}
