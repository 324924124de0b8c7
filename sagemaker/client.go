package sagemaker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs/cloudwatchlogsiface"
	"github.com/aws/aws-sdk-go/service/sagemaker"
	"github.com/aws/aws-sdk-go/service/sagemaker/sagemakeriface"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime/sagemakerruntimeiface"
	"github.com/samber/lo"
	"go.uber.org/zap"

	lib "eiprobe/lib/sagemaker"
	"eiprobe/platform"
)

var (
	ErrNotFound       = errors.New("resource not found on sagemaker")
	ErrEndpointFailed = errors.New("endpoint failed to reach InService")
)

func NewClient(sess *platform.Session, logger *zap.Logger) SMClient {
	return SMClient{
		runtimeClient:  sagemakerruntime.New(sess.AWS, sess.RuntimeConfig()),
		metadataClient: sagemaker.New(sess.AWS, sess.SagemakerConfig()),
		logsClient:     cloudwatchlogs.New(sess.AWS),
		logger:         logger,
		pollInterval:   time.Second,
		waiterDelay:    30 * time.Second,
	}
}

type SMClient struct {
	runtimeClient  sagemakerruntimeiface.SageMakerRuntimeAPI
	metadataClient sagemakeriface.SageMakerAPI
	logsClient     cloudwatchlogsiface.CloudWatchLogsAPI
	logger         *zap.Logger
	pollInterval   time.Duration
	waiterDelay    time.Duration
}

var _ lib.Registry = SMClient{}
var _ lib.InferenceServer = SMClient{}
var _ lib.LogSource = SMClient{}

func (smc SMClient) CreateModel(ctx context.Context, model lib.Model) error {
	env := make(map[string]*string, len(model.Environment))
	for k, v := range model.Environment {
		env[k] = aws.String(v)
	}
	modelInput := sagemaker.CreateModelInput{
		ExecutionRoleArn: aws.String(model.ExecutionRole),
		ModelName:        aws.String(model.Name),
		PrimaryContainer: &sagemaker.ContainerDefinition{
			Image:        aws.String(model.Image),
			ModelDataUrl: aws.String(model.ArtifactPath),
			Environment:  env,
		},
	}
	_, err := smc.metadataClient.CreateModelWithContext(ctx, &modelInput)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}
	smc.logger.Info("created model", zap.String("model", model.Name), zap.String("image", model.Image))
	return nil
}

// isNotFound matches the ValidationException the control plane returns for
// a describe or delete of a missing resource.
func isNotFound(err error, prefix string) bool {
	if e, ok := err.(awserr.Error); ok {
		return e.Code() == "ValidationException" && strings.HasPrefix(e.Message(), prefix)
	}
	return false
}

func (smc SMClient) ModelExists(ctx context.Context, modelName string) (bool, error) {
	input := sagemaker.DescribeModelInput{
		ModelName: aws.String(modelName),
	}
	_, err := smc.metadataClient.DescribeModelWithContext(ctx, &input)
	if err != nil {
		if isNotFound(err, "Could not find model") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check if model exists on sagemaker: %w", err)
	}
	return true, nil
}

func (smc SMClient) EndpointConfigExists(ctx context.Context, endpointConfigName string) (bool, error) {
	input := sagemaker.DescribeEndpointConfigInput{
		EndpointConfigName: aws.String(endpointConfigName),
	}
	_, err := smc.metadataClient.DescribeEndpointConfigWithContext(ctx, &input)
	if err != nil {
		if isNotFound(err, "Could not find endpoint config") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check if endpoint config exists on sagemaker: %w", err)
	}
	return true, nil
}

func (smc SMClient) EndpointExists(ctx context.Context, endpointName string) (bool, error) {
	input := sagemaker.DescribeEndpointInput{
		EndpointName: aws.String(endpointName),
	}
	_, err := smc.metadataClient.DescribeEndpointWithContext(ctx, &input)
	if err != nil {
		if isNotFound(err, "Could not find endpoint") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check if endpoint exists on sagemaker: %w", err)
	}
	return true, nil
}

func (smc SMClient) GetEndpointStatus(ctx context.Context, endpointName string) (string, error) {
	input := sagemaker.DescribeEndpointInput{
		EndpointName: aws.String(endpointName),
	}
	output, err := smc.metadataClient.DescribeEndpointWithContext(ctx, &input)
	if err != nil {
		if isNotFound(err, "Could not find endpoint") {
			return "", fmt.Errorf("%w: endpoint [%s]", ErrNotFound, endpointName)
		}
		return "", fmt.Errorf("failed to get endpoint status: %w", err)
	}
	return aws.StringValue(output.EndpointStatus), nil
}

func (smc SMClient) ListEndpoints(ctx context.Context, nameContains string) ([]lib.EndpointSummary, error) {
	input := sagemaker.ListEndpointsInput{
		SortBy:    aws.String(sagemaker.EndpointSortKeyCreationTime),
		SortOrder: aws.String(sagemaker.OrderKeyAscending),
	}
	if nameContains != "" {
		input.NameContains = aws.String(nameContains)
	}
	var summaries []lib.EndpointSummary
	err := smc.metadataClient.ListEndpointsPagesWithContext(ctx, &input, func(page *sagemaker.ListEndpointsOutput, lastPage bool) bool {
		summaries = append(summaries, lo.Map(page.Endpoints, func(e *sagemaker.EndpointSummary, _ int) lib.EndpointSummary {
			return lib.EndpointSummary{
				Name:         aws.StringValue(e.EndpointName),
				Status:       aws.StringValue(e.EndpointStatus),
				CreationTime: aws.TimeValue(e.CreationTime).Unix(),
			}
		})...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}
	return summaries, nil
}

func (smc SMClient) DeleteModel(ctx context.Context, modelName string) error {
	input := sagemaker.DeleteModelInput{
		ModelName: aws.String(modelName),
	}
	_, err := smc.metadataClient.DeleteModelWithContext(ctx, &input)
	if err != nil {
		if isNotFound(err, "Could not find model") {
			return fmt.Errorf("%w: model [%s]", ErrNotFound, modelName)
		}
		return fmt.Errorf("failed to delete model: %w", err)
	}
	return nil
}

func (smc SMClient) DeleteEndpointConfig(ctx context.Context, endpointConfigName string) error {
	input := sagemaker.DeleteEndpointConfigInput{
		EndpointConfigName: aws.String(endpointConfigName),
	}
	_, err := smc.metadataClient.DeleteEndpointConfigWithContext(ctx, &input)
	if err != nil {
		if isNotFound(err, "Could not find endpoint config") {
			return fmt.Errorf("%w: endpoint config [%s]", ErrNotFound, endpointConfigName)
		}
		return fmt.Errorf("failed to delete endpoint config: %w", err)
	}
	return nil
}

func (smc SMClient) DeleteEndpoint(ctx context.Context, endpointName string) error {
	input := sagemaker.DeleteEndpointInput{
		EndpointName: aws.String(endpointName),
	}
	_, err := smc.metadataClient.DeleteEndpointWithContext(ctx, &input)
	if err != nil {
		if isNotFound(err, "Could not find endpoint") {
			return fmt.Errorf("%w: endpoint [%s]", ErrNotFound, endpointName)
		}
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}
	// Wait for endpoint to be deleted -- this should take no longer than a few
	// seconds.
	for {
		exists, err := smc.EndpointExists(ctx, endpointName)
		if err != nil {
			return fmt.Errorf("failed to check if endpoint still exists: %w", err)
		}
		if !exists {
			return nil
		}
		smc.logger.Debug("waiting for endpoint to be deleted", zap.String("endpoint", endpointName))
		select {
		case <-ctx.Done():
			return fmt.Errorf("endpoint [%s] still exists: %w", endpointName, ctx.Err())
		case <-time.After(smc.pollInterval):
		}
	}
}

func (smc SMClient) CreateEndpointConfig(ctx context.Context, endpointCfg lib.EndpointConfig) error {
	variant := &sagemaker.ProductionVariant{
		ModelName:            aws.String(endpointCfg.ModelName),
		VariantName:          aws.String(endpointCfg.VariantName),
		InstanceType:         aws.String(endpointCfg.InstanceType),
		InitialInstanceCount: aws.Int64(int64(endpointCfg.InstanceCount)),
		InitialVariantWeight: aws.Float64(1),
	}
	if accelerator, ok := endpointCfg.AcceleratorType.Get(); ok {
		variant.AcceleratorType = aws.String(accelerator)
	}
	endpointCfgInput := sagemaker.CreateEndpointConfigInput{
		EndpointConfigName: aws.String(endpointCfg.Name),
		ProductionVariants: []*sagemaker.ProductionVariant{variant},
	}
	_, err := smc.metadataClient.CreateEndpointConfigWithContext(ctx, &endpointCfgInput)
	if err != nil {
		return fmt.Errorf("failed to create endpoint config on sagemaker: %w", err)
	}
	return nil
}

func (smc SMClient) CreateEndpoint(ctx context.Context, endpoint lib.Endpoint) error {
	endpointInput := sagemaker.CreateEndpointInput{
		EndpointName:       aws.String(endpoint.Name),
		EndpointConfigName: aws.String(endpoint.EndpointConfigName),
	}
	_, err := smc.metadataClient.CreateEndpointWithContext(ctx, &endpointInput)
	if err != nil {
		return fmt.Errorf("failed to create endpoint on sagemaker: %w", err)
	}
	smc.logger.Info("creating endpoint", zap.String("endpoint", endpoint.Name))
	return nil
}

// WaitForEndpoint blocks until the endpoint is InService. The wait is bounded
// by ctx and by the waiter's own attempt limit.
func (smc SMClient) WaitForEndpoint(ctx context.Context, endpointName string) error {
	input := sagemaker.DescribeEndpointInput{
		EndpointName: aws.String(endpointName),
	}
	err := smc.metadataClient.WaitUntilEndpointInServiceWithContext(ctx, &input,
		request.WithWaiterDelay(request.ConstantWaiterDelay(smc.waiterDelay)),
		request.WithWaiterLogger(aws.LoggerFunc(func(args ...interface{}) {
			smc.logger.Debug(fmt.Sprint(args...), zap.String("endpoint", endpointName))
		})),
	)
	if err == nil {
		smc.logger.Info("endpoint in service", zap.String("endpoint", endpointName))
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("endpoint [%s] not in service: %w", endpointName, ctx.Err())
	}
	out, derr := smc.metadataClient.DescribeEndpointWithContext(ctx, &input)
	if derr == nil && aws.StringValue(out.EndpointStatus) == lib.StatusFailed {
		return fmt.Errorf("%w: [%s]: %s", ErrEndpointFailed, endpointName, aws.StringValue(out.FailureReason))
	}
	return fmt.Errorf("failed waiting for endpoint [%s]: %w", endpointName, err)
}
