package deploy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/samber/mo"
	"go.uber.org/zap"

	"eiprobe/harness"
	lib "eiprobe/lib/sagemaker"
	"eiprobe/lib/sourcedir"
	"eiprobe/lib/tensor"
	"eiprobe/model/ledger"
	"eiprobe/sagemaker"
)

const (
	variantName = "AllTraffic"
	// containerLogLevel is python's logging.INFO.
	containerLogLevel = "20"
)

// Request describes a framework model to host behind a new endpoint.
type Request struct {
	EndpointName     string
	ModelData        string
	EntryPoint       string
	Framework        string
	FrameworkVersion string
	PyVersion        string
	Image            string
	Role             string
	InstanceType     string
	InstanceCount    uint
	AcceleratorType  mo.Option[string]
	// Bucket receives the packaged entry point.
	Bucket string
}

func (r Request) validate() error {
	switch {
	case r.EndpointName == "":
		return fmt.Errorf("endpoint name is required")
	case len(r.EndpointName) > lib.MaxNameLength:
		return fmt.Errorf("endpoint name [%s] longer than %d characters", r.EndpointName, lib.MaxNameLength)
	case r.ModelData == "":
		return fmt.Errorf("model data is required")
	case r.EntryPoint == "":
		return fmt.Errorf("entry point is required")
	case r.Image == "":
		return fmt.Errorf("image is required")
	case r.Role == "":
		return fmt.Errorf("role is required")
	case r.InstanceType == "":
		return fmt.Errorf("instance type is required")
	case r.InstanceCount == 0:
		return fmt.Errorf("instance count must be positive")
	case r.Bucket == "":
		return fmt.Errorf("bucket is required")
	}
	return nil
}

// Predictor sends JSON payloads to a deployed endpoint.
type Predictor struct {
	EndpointName string
	server       lib.InferenceServer
}

func NewPredictor(endpointName string, server lib.InferenceServer) Predictor {
	return Predictor{EndpointName: endpointName, server: server}
}

func (p Predictor) Predict(ctx context.Context, input tensor.Matrix) (tensor.Matrix, error) {
	resp, err := p.server.Predict(ctx, &lib.PredictRequest{
		EndpointName: p.EndpointName,
		ContentType:  lib.ContentJSON,
		Accept:       lib.ContentJSON,
		Payload:      input,
	})
	if err != nil {
		return nil, err
	}
	return resp.Output, nil
}

// containerEnv is the environment the framework serving container reads its
// entry point from.
func containerEnv(entryPoint, submitDir, region string) map[string]string {
	return map[string]string{
		"SAGEMAKER_PROGRAM":                   filepath.Base(entryPoint),
		"SAGEMAKER_SUBMIT_DIRECTORY":          submitDir,
		"SAGEMAKER_REGION":                    region,
		"SAGEMAKER_CONTAINER_LOG_LEVEL":       containerLogLevel,
		"SAGEMAKER_ENABLE_CLOUDWATCH_METRICS": "false",
	}
}

// Deploy packages and uploads the entry point, registers the model, creates
// an endpoint config and an endpoint, all named req.EndpointName, and blocks
// until the endpoint is in service.
func Deploy(ctx context.Context, h harness.Harness, req Request) (Predictor, error) {
	if err := req.validate(); err != nil {
		return Predictor{}, fmt.Errorf("invalid deploy request: %w", err)
	}
	logger := h.Logger.With(zap.String("endpoint", req.EndpointName))

	bundle, err := sourcedir.Pack(req.EntryPoint)
	if err != nil {
		return Predictor{}, err
	}
	key := lib.SourceDirKey(req.EndpointName)
	if err := h.S3Client.Upload(ctx, bundle, key, req.Bucket); err != nil {
		return Predictor{}, fmt.Errorf("failed to upload entry point: %w", err)
	}
	submitDir := lib.S3URI(req.Bucket, key)
	logger.Info("uploaded entry point", zap.String("uri", submitDir))

	if conn, ok := h.DB.Get(); ok {
		err := ledger.Insert(conn, lib.DeployedEndpoint{
			Name:               req.EndpointName,
			ModelName:          req.EndpointName,
			EndpointConfigName: req.EndpointName,
			Region:             h.Identity.Region(),
			InstanceType:       req.InstanceType,
			AcceleratorType:    req.AcceleratorType.OrEmpty(),
			SourceBucket:       req.Bucket,
			CreatedAt:          h.Clock.Now().Unix(),
		})
		if err != nil {
			return Predictor{}, err
		}
	}

	err = h.SagemakerClient.CreateModel(ctx, lib.Model{
		Name:             req.EndpointName,
		ArtifactPath:     req.ModelData,
		EntryPoint:       req.EntryPoint,
		Framework:        req.Framework,
		FrameworkVersion: req.FrameworkVersion,
		PyVersion:        req.PyVersion,
		Image:            req.Image,
		ExecutionRole:    req.Role,
		Environment:      containerEnv(req.EntryPoint, submitDir, h.Identity.Region()),
	})
	if err != nil {
		return Predictor{}, err
	}
	err = h.SagemakerClient.CreateEndpointConfig(ctx, lib.EndpointConfig{
		Name:            req.EndpointName,
		ModelName:       req.EndpointName,
		VariantName:     variantName,
		InstanceType:    req.InstanceType,
		InstanceCount:   req.InstanceCount,
		AcceleratorType: req.AcceleratorType,
	})
	if err != nil {
		return Predictor{}, err
	}
	err = h.SagemakerClient.CreateEndpoint(ctx, lib.Endpoint{
		Name:               req.EndpointName,
		EndpointConfigName: req.EndpointName,
	})
	if err != nil {
		return Predictor{}, err
	}
	logger.Info("waiting for endpoint")
	if err := h.SagemakerClient.WaitForEndpoint(ctx, req.EndpointName); err != nil {
		return Predictor{}, err
	}
	logger.Info("endpoint in service")
	return NewPredictor(req.EndpointName, h.SagemakerClient), nil
}

type teardownStep struct {
	kind string
	del  func(context.Context, string) error
}

// Teardown deletes the endpoint, endpoint config and model named name, then
// the source bundle Deploy uploaded to bucket. An empty bucket skips the
// bundle. Resources already gone are not an error. The ledger row is marked
// deleted only when every resource is gone.
func Teardown(ctx context.Context, h harness.Harness, name, bucket string) error {
	logger := h.Logger.With(zap.String("endpoint", name))
	steps := []teardownStep{
		{"endpoint", h.SagemakerClient.DeleteEndpoint},
		{"endpoint config", h.SagemakerClient.DeleteEndpointConfig},
		{"model", h.SagemakerClient.DeleteModel},
	}
	if bucket != "" {
		steps = append(steps, teardownStep{"source bundle", func(ctx context.Context, name string) error {
			return h.S3Client.Delete(ctx, lib.SourceDirKey(name), bucket)
		}})
	}
	var first error
	for _, step := range steps {
		err := step.del(ctx, name)
		switch {
		case err == nil:
			logger.Info("deleted " + step.kind)
		case errors.Is(err, sagemaker.ErrNotFound):
			logger.Debug(step.kind+" already deleted", zap.Error(err))
		default:
			logger.Warn("failed to delete "+step.kind, zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	if first != nil {
		return first
	}
	if conn, ok := h.DB.Get(); ok {
		err := ledger.MarkDeleted(conn, name, h.Clock.Now().Unix())
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			return err
		}
	}
	return nil
}
