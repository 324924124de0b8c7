package sagemaker

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime"
	"go.uber.org/zap"

	lib "eiprobe/lib/sagemaker"
	"eiprobe/lib/tensor"
)

func (smc SMClient) Predict(ctx context.Context, in *lib.PredictRequest) (*lib.PredictResponse, error) {
	payload, err := in.Payload.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	contentType, accept := in.ContentType, in.Accept
	if contentType == "" {
		contentType = lib.ContentJSON
	}
	if accept == "" {
		accept = lib.ContentJSON
	}
	out, err := smc.runtimeClient.InvokeEndpointWithContext(ctx, &sagemakerruntime.InvokeEndpointInput{
		Body:         payload,
		ContentType:  aws.String(contentType),
		Accept:       aws.String(accept),
		EndpointName: aws.String(in.EndpointName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke sagemaker endpoint: %w", err)
	}
	smc.logger.Debug("invoked endpoint",
		zap.String("endpoint", in.EndpointName),
		zap.String("invoked_variant", aws.StringValue(out.InvokedProductionVariant)),
		zap.ByteString("body", out.Body),
	)
	output, err := tensor.FromJSON(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response of endpoint [%s]: %w", in.EndpointName, err)
	}
	return &lib.PredictResponse{Output: output}, nil
}
