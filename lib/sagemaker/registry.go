package sagemaker

import (
	"context"
	"io"

	"github.com/samber/mo"

	"eiprobe/lib/tensor"
)

// Model is a framework model registered on the hosting platform.
type Model struct {
	Name             string
	ArtifactPath     string
	EntryPoint       string
	Framework        string
	FrameworkVersion string
	PyVersion        string
	Image            string
	ExecutionRole    string
	Environment      map[string]string
}

type EndpointConfig struct {
	Name            string
	ModelName       string
	VariantName     string
	InstanceType    string
	InstanceCount   uint
	AcceleratorType mo.Option[string]
}

type Endpoint struct {
	Name               string
	EndpointConfigName string
}

// EndpointSummary is the subset of endpoint metadata returned by listings.
type EndpointSummary struct {
	Name         string
	Status       string
	CreationTime int64
}

// Registry drives the control plane of the hosting platform.
type Registry interface {
	CreateModel(ctx context.Context, model Model) error
	CreateEndpointConfig(ctx context.Context, cfg EndpointConfig) error
	CreateEndpoint(ctx context.Context, endpoint Endpoint) error
	WaitForEndpoint(ctx context.Context, endpointName string) error

	ModelExists(ctx context.Context, modelName string) (bool, error)
	EndpointConfigExists(ctx context.Context, endpointConfigName string) (bool, error)
	EndpointExists(ctx context.Context, endpointName string) (bool, error)
	GetEndpointStatus(ctx context.Context, endpointName string) (string, error)
	ListEndpoints(ctx context.Context, nameContains string) ([]EndpointSummary, error)

	DeleteModel(ctx context.Context, modelName string) error
	DeleteEndpointConfig(ctx context.Context, endpointConfigName string) error
	DeleteEndpoint(ctx context.Context, endpointName string) error
}

type InferenceServer interface {
	Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error)
}

// LogSource exposes the logs a hosted endpoint writes while serving.
type LogSource interface {
	EndpointLogs(ctx context.Context, endpointName string) ([]string, error)
	DeleteEndpointLogs(ctx context.Context, endpointName string) error
}

// ArtifactStore is the remote storage models and source bundles are uploaded to.
type ArtifactStore interface {
	Upload(ctx context.Context, file io.Reader, key, bucket string) error
	UploadData(ctx context.Context, path, bucket, keyPrefix string) (string, error)
	Delete(ctx context.Context, key, bucket string) error
}

type PredictRequest struct {
	EndpointName string
	ContentType  string
	Accept       string
	Payload      tensor.Matrix
}

type PredictResponse struct {
	Output tensor.Matrix
}

// DeployedEndpoint is the ledger record of an endpoint created by a smoke
// run. DeletedAt is 0 while the endpoint may still be running.
type DeployedEndpoint struct {
	Name               string `db:"name"`
	ModelName          string `db:"model_name"`
	EndpointConfigName string `db:"endpoint_config_name"`
	Region             string `db:"region"`
	InstanceType       string `db:"instance_type"`
	AcceleratorType    string `db:"accelerator_type"`
	// SourceBucket holds the packaged entry point, empty when unknown.
	SourceBucket       string `db:"source_bucket"`
	CreatedAt          int64  `db:"created_at"`
	DeletedAt          int64  `db:"deleted_at"`
}
