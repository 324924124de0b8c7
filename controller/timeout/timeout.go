package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"eiprobe/controller/deploy"
	"eiprobe/harness"
)

var (
	ErrTimeout = errors.New("timed out")
	ErrPanic   = errors.New("panicked")
)

type Options struct {
	// Timeout bounds fn. Defaults to 45 minutes.
	Timeout time.Duration
	// DeleteAttempts defaults to 3.
	DeleteAttempts int
	// RetryDelay separates delete attempts. Defaults to 10 seconds.
	RetryDelay time.Duration
	// DeleteTimeout bounds all delete attempts together. Defaults to 15 minutes.
	DeleteTimeout time.Duration
	// Bucket holds the source bundle of the endpoint. Empty leaves it alone.
	Bucket string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 45 * time.Minute
	}
	if o.DeleteAttempts <= 0 {
		o.DeleteAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 10 * time.Second
	}
	if o.DeleteTimeout <= 0 {
		o.DeleteTimeout = 15 * time.Minute
	}
	return o
}

// AndDeleteEndpoint runs fn with a deadline of opts.Timeout and then deletes
// the endpoint, however fn ended: success, error, panic or deadline. A panic
// in fn is returned as ErrPanic. When fn outlives its deadline it is
// abandoned and ErrTimeout is returned. When ctx itself is done first, fn is
// abandoned too and the error wraps ctx.Err().
//
// The error of fn takes precedence over a failed deletion, which is logged.
func AndDeleteEndpoint(ctx context.Context, h harness.Harness, endpointName string, opts Options, fn func(ctx context.Context) error) error {
	opts = opts.withDefaults()
	logger := h.Logger.With(zap.String("endpoint", endpointName))

	fnErr := run(ctx, opts.Timeout, fn)

	// ctx may be done already; deletion gets its own budget
	deleteCtx, cancel := context.WithTimeout(context.Background(), opts.DeleteTimeout)
	defer cancel()
	deleteErr := deleteEndpoint(deleteCtx, h, endpointName, opts)
	printLogs(deleteCtx, h, endpointName, logger)

	if deleteErr != nil {
		logger.Error("failed to delete endpoint", zap.Error(deleteErr))
	} else if fnErr == nil {
		if err := h.SagemakerClient.DeleteEndpointLogs(deleteCtx, endpointName); err != nil {
			logger.Warn("failed to delete endpoint logs", zap.Error(err))
		}
	}
	if fnErr != nil {
		return fnErr
	}
	if deleteErr != nil {
		return fmt.Errorf("failed to delete endpoint [%s]: %w", endpointName, deleteErr)
	}
	return nil
}

func run(parent context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if err := parent.Err(); err != nil {
			return fmt.Errorf("interrupted: %w", err)
		}
		return fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, ctx.Err())
	}
}

func deleteEndpoint(ctx context.Context, h harness.Harness, endpointName string, opts Options) error {
	var err error
	for attempt := 1; attempt <= opts.DeleteAttempts; attempt++ {
		if err = deploy.Teardown(ctx, h, endpointName, opts.Bucket); err == nil {
			return nil
		}
		h.Logger.Warn("delete attempt failed",
			zap.String("endpoint", endpointName),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == opts.DeleteAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(opts.RetryDelay):
		}
	}
	return err
}

func printLogs(ctx context.Context, h harness.Harness, endpointName string, logger *zap.Logger) {
	lines, err := h.SagemakerClient.EndpointLogs(ctx, endpointName)
	if err != nil {
		logger.Warn("failed to fetch endpoint logs", zap.Error(err))
		return
	}
	for _, line := range lines {
		logger.Info("endpoint log", zap.String("line", line))
	}
}
