package smoke

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/mo"
	"go.uber.org/zap"

	"eiprobe/controller/deploy"
	"eiprobe/controller/timeout"
	"eiprobe/harness"
	lib "eiprobe/lib/sagemaker"
	"eiprobe/lib/tensor"
	"eiprobe/lib/timer"
)

var (
	// ErrSkipped is returned when no accelerator type is given. Nothing
	// remote has been touched.
	ErrSkipped            = errors.New("skipping because accelerator type was not provided")
	ErrPredictionMismatch = errors.New("prediction does not match expected output")
)

type Result struct {
	EndpointName string
	ModelData    string
	Output       tensor.Matrix
}

// Run uploads the model, deploys it behind an elastic inference endpoint,
// predicts p.Input once and compares the output with p.Expected exactly. The
// endpoint is deleted before Run returns, whether the run passed or not.
func Run(ctx context.Context, h harness.Harness, p Profile, acceleratorType mo.Option[string]) (Result, error) {
	var result Result
	accelerator, ok := acceleratorType.Get()
	if !ok || accelerator == "" {
		h.Logger.Info("skipping smoke run", zap.String("profile", p.Name))
		return result, ErrSkipped
	}
	if err := p.Valid(h.Args.Args); err != nil {
		return result, err
	}
	resources, err := ResolveResources(p.ResourcesDir)
	if err != nil {
		return result, err
	}
	if err := resources.check(); err != nil {
		return result, err
	}
	logger := h.Logger.With(zap.String("profile", p.Name), zap.String("accelerator_type", accelerator))

	t := timer.Start(ctx, "upload")
	bucket, err := h.DefaultBucket(t.Context())
	if err == nil {
		result.ModelData, err = h.S3Client.UploadData(t.Context(), resources.ModelPath, bucket, p.KeyPrefix)
	}
	t.Stop(err)
	if err != nil {
		return result, fmt.Errorf("failed to upload model: %w", err)
	}
	logger.Info("uploaded model", zap.String("model_data", result.ModelData))

	result.EndpointName = lib.UniqueNameFromBase(p.EndpointBase, h.Clock)
	logger = logger.With(zap.String("endpoint", result.EndpointName))

	attached := mo.None[string]()
	if p.AttachAccelerator {
		attached = mo.Some(accelerator)
	}

	// fn is abandoned on timeout or interruption, so output is only read once
	// fn returned
	var output tensor.Matrix
	opts := timeout.Options{Timeout: p.Timeout, Bucket: bucket}
	err = timeout.AndDeleteEndpoint(ctx, h, result.EndpointName, opts, func(ctx context.Context) error {
		t := timer.Start(ctx, "deploy")
		predictor, err := deploy.Deploy(t.Context(), h, deploy.Request{
			EndpointName:     result.EndpointName,
			ModelData:        result.ModelData,
			EntryPoint:       resources.ScriptPath,
			Framework:        lib.FrameworkMXNet,
			FrameworkVersion: p.FrameworkVersion,
			PyVersion:        p.PyVersion,
			Image:            p.Image,
			Role:             p.Role,
			InstanceType:     p.InstanceType,
			InstanceCount:    p.InstanceCount,
			AcceleratorType:  attached,
			Bucket:           bucket,
		})
		t.Stop(err)
		if err != nil {
			return fmt.Errorf("failed to deploy model: %w", err)
		}

		t = timer.Start(ctx, "predict")
		output, err = predictor.Predict(t.Context(), p.Input)
		t.Stop(err)
		if err != nil {
			return fmt.Errorf("failed to predict: %w", err)
		}
		logger.Info("prediction", zap.Stringer("input", p.Input), zap.Stringer("output", output))

		if !tensor.Equal(output, p.Expected) {
			return fmt.Errorf("%w: expected %s, got %s", ErrPredictionMismatch, p.Expected, output)
		}
		return nil
	})
	if !errors.Is(err, timeout.ErrTimeout) && ctx.Err() == nil {
		result.Output = output
	}
	return result, err
}
