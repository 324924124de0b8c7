package sweeper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"eiprobe/controller/deploy"
	"eiprobe/harness"
	lib "eiprobe/lib/sagemaker"
	"eiprobe/model/ledger"
)

type Options struct {
	// Prefix selects the endpoints to sweep, e.g. the smoke test base name.
	Prefix string
	// MaxAge is how long an endpoint may live before it counts as leaked.
	MaxAge time.Duration
	// Parallelism bounds concurrent teardowns. Defaults to 4.
	Parallelism int
	DryRun      bool
}

type Report struct {
	Leaked  []string
	Deleted []string
}

// Sweep tears down endpoints named Prefix* in the harness region that are
// older than MaxAge. The candidates are the live endpoints on the platform
// plus those the ledger still holds as live, so rows of endpoints deleted out
// of band are closed too. Source bundles are deleted from the bucket the
// ledger recorded, or from the harness bucket for endpoints it never saw.
func Sweep(ctx context.Context, h harness.Harness, opts Options) (Report, error) {
	if opts.Prefix == "" {
		return Report{}, fmt.Errorf("refusing to sweep without a name prefix")
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	cutoff := h.Clock.Now().Add(-opts.MaxAge).Unix()

	summaries, err := h.SagemakerClient.ListEndpoints(ctx, opts.Prefix)
	if err != nil {
		return Report{}, err
	}
	expired := lo.Filter(summaries, func(e lib.EndpointSummary, _ int) bool {
		return strings.HasPrefix(e.Name, opts.Prefix) && e.CreationTime <= cutoff
	})
	leaked := lo.Map(expired, func(e lib.EndpointSummary, _ int) string {
		return e.Name
	})
	buckets := make(map[string]string)
	if conn, ok := h.DB.Get(); ok {
		live, err := ledger.ListLive(conn, h.Identity.Region(), cutoff)
		if err != nil {
			return Report{}, err
		}
		for _, e := range live {
			if strings.HasPrefix(e.Name, opts.Prefix) {
				leaked = append(leaked, e.Name)
				buckets[e.Name] = e.SourceBucket
			}
		}
	}
	report := Report{Leaked: lo.Uniq(leaked)}
	for _, name := range report.Leaked {
		h.Logger.Info("found leaked endpoint", zap.String("endpoint", name), zap.Bool("dry_run", opts.DryRun))
	}
	if opts.DryRun {
		return report, nil
	}

	deleted := make([]string, len(report.Leaked))
	count := atomic.NewInt32(0)
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, opts.Parallelism)
	for _, name := range report.Leaked {
		name := name
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()
			bucket, ok := buckets[name]
			if !ok {
				bucket = h.Args.Bucket
			}
			if err := deploy.Teardown(gctx, h, name, bucket); err != nil {
				return fmt.Errorf("failed to sweep endpoint [%s]: %w", name, err)
			}
			deleted[count.Inc()-1] = name
			return nil
		})
	}
	err = g.Wait()
	report.Deleted = deleted[:count.Load()]
	return report, err
}
