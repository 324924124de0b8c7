package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/alexflint/go-arg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"
	"github.com/samber/mo"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"eiprobe/harness"
	"eiprobe/lib/timer"
	"eiprobe/lib/tracer"
	"eiprobe/platform"
	"eiprobe/smoke"
)

type SmokeArgs struct {
	AcceleratorType string `arg:"--accelerator-type,env:ACCELERATOR_TYPE" json:"accelerator_type,omitempty" help:"elastic inference accelerator, e.g. ml.eia1.medium; the run is skipped when empty"`
	Profile         string `arg:"--profile,env:SMOKE_PROFILE" default:"default" json:"profile,omitempty" help:"default or loadtest"`
	ProfileFile     string `arg:"--profile-file,env:SMOKE_PROFILE_FILE" json:"profile_file,omitempty" help:"YAML overrides of the profile"`
	Resources       string `arg:"--resources,env:SMOKE_RESOURCES" json:"resources,omitempty" help:"directory holding default_handlers/"`
	Pushgateway     string `arg:"--pushgateway,env:PUSHGATEWAY_URL" json:"pushgateway,omitempty"`
}

// mergePlatformArgs fills the session arguments not given on the command line
// from the profile.
func mergePlatformArgs(flags platform.Args, p smoke.Profile) platform.Args {
	profileArgs := p.PlatformArgs()
	if flags.Region == "" {
		flags.Region = profileArgs.Region
	}
	if flags.SagemakerEndpointURL == "" {
		flags.SagemakerEndpointURL = profileArgs.SagemakerEndpointURL
	}
	if flags.RuntimeEndpointURL == "" {
		flags.RuntimeEndpointURL = profileArgs.RuntimeEndpointURL
	}
	return flags
}

func loadProfile(args SmokeArgs) (smoke.Profile, error) {
	p, err := smoke.ProfileByName(args.Profile)
	if err != nil {
		return p, err
	}
	if args.ProfileFile != "" {
		if p, err = p.LoadOverrides(args.ProfileFile); err != nil {
			return p, err
		}
	}
	if args.Resources != "" {
		p.ResourcesDir = args.Resources
	}
	return p, nil
}

// startSpan opens the root span of a run, tagged with what the run deploys.
func startSpan(ctx context.Context, p smoke.Profile, acceleratorType string) tracer.Span {
	span := tracer.StartSpan(ctx, "smoke")
	span.SetStringAttribute("profile", p.Name)
	span.SetStringAttribute("accelerator_type", acceleratorType)
	span.SetStringAttribute("instance_type", p.InstanceType)
	span.SetIntAttribute("instance_count", int(p.InstanceCount))
	return span
}

// pusher sends the phase metrics of a run to a Prometheus pushgateway in the
// text exposition format.
func pusher(url string, p smoke.Profile, g prometheus.Gatherer) *push.Pusher {
	return push.New(url, "eiprobe_smoke").
		Gatherer(g).
		Grouping("profile", p.Name).
		Format(expfmt.FmtText)
}

func exitCode(err error) int {
	if err == nil || errors.Is(err, smoke.ErrSkipped) {
		return 0
	}
	return 1
}

func run() int {
	var flags struct {
		harness.HarnessArgs
		SmokeArgs
	}
	arg.MustParse(&flags)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	profile, err := loadProfile(flags.SmokeArgs)
	if err != nil {
		log.Printf("failed to load profile: %v", err)
		return 1
	}
	flags.HarnessArgs.Args = mergePlatformArgs(flags.HarnessArgs.Args, profile)

	h, err := harness.CreateFromArgs(&flags.HarnessArgs)
	if err != nil {
		log.Printf("failed to setup harness: %v", err)
		return 1
	}
	defer h.Close()

	if flags.OtlpEndpoint != "" {
		shutdown, err := tracer.InitProvider(context.Background(), flags.OtlpEndpoint)
		if err != nil {
			h.Logger.Error("failed to init tracer", zap.Error(err))
			return 1
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				h.Logger.Warn("failed to flush spans", zap.Error(err))
			}
		}()
	}

	// the endpoint is still torn down on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()
	ctx = timer.WithTracing(ctx)
	span := startSpan(ctx, profile, flags.AcceleratorType)

	accelerator := mo.None[string]()
	if flags.AcceleratorType != "" {
		accelerator = mo.Some(flags.AcceleratorType)
	}
	result, err := smoke.Run(span.Context(), h, profile, accelerator)
	span.RecordError(err)
	span.End()
	_ = timer.LogTracingInfo(ctx, h.Logger)

	if flags.Pushgateway != "" && !errors.Is(err, smoke.ErrSkipped) {
		pushErr := pusher(flags.Pushgateway, profile, prometheus.DefaultGatherer).Push()
		if pushErr != nil {
			h.Logger.Warn("failed to push metrics", zap.Error(pushErr))
		}
	}

	switch {
	case errors.Is(err, smoke.ErrSkipped):
		h.Logger.Info("smoke run skipped", zap.String("reason", err.Error()))
	case err != nil:
		h.Logger.Error("smoke run failed", zap.String("endpoint", result.EndpointName), zap.Error(err))
	default:
		h.Logger.Info("smoke run passed",
			zap.String("endpoint", result.EndpointName),
			zap.String("output", fmt.Sprint(result.Output)),
			zap.String("trace_id", span.GetXrayTraceID()),
		)
	}
	return exitCode(err)
}

func main() {
	os.Exit(run())
}
