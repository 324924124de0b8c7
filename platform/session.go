package platform

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/aws/aws-sdk-go/service/sts/stsiface"
)

type Args struct {
	Region               string `arg:"--region,env:AWS_REGION" json:"region,omitempty" help:"AWS region"`
	SagemakerEndpointURL string `arg:"--sagemaker-endpoint-url,env:SAGEMAKER_ENDPOINT_URL" json:"sagemaker_endpoint_url,omitempty" help:"SageMaker control plane endpoint override"`
	RuntimeEndpointURL   string `arg:"--runtime-endpoint-url,env:SAGEMAKER_RUNTIME_ENDPOINT_URL" json:"runtime_endpoint_url,omitempty" help:"SageMaker runtime endpoint override"`
	S3EndpointURL        string `arg:"--s3-endpoint-url,env:S3_ENDPOINT_URL" json:"s3_endpoint_url,omitempty" help:"S3 endpoint override"`
}

// Custom reports whether any service endpoint is overridden, i.e. the
// session talks to something other than the public regional endpoints.
func (args Args) Custom() bool {
	return args.SagemakerEndpointURL != "" || args.RuntimeEndpointURL != "" || args.S3EndpointURL != ""
}

// Session is an authenticated handle to the control, runtime and storage
// APIs of the hosting platform.
type Session struct {
	args Args
	AWS  *session.Session
	sts  stsiface.STSAPI
}

func New(args Args) (*Session, error) {
	if args.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	sess, err := session.NewSession(
		&aws.Config{
			Region:                        aws.String(args.Region),
			CredentialsChainVerboseErrors: aws.Bool(true),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return &Session{
		args: args,
		AWS:  sess,
		sts:  sts.New(sess),
	}, nil
}

func (s *Session) Region() string {
	return s.args.Region
}

func (s *Session) Args() Args {
	return s.args
}

func (s *Session) SagemakerConfig() *aws.Config {
	return endpointConfig(s.args.SagemakerEndpointURL)
}

func (s *Session) RuntimeConfig() *aws.Config {
	return endpointConfig(s.args.RuntimeEndpointURL)
}

func (s *Session) S3Config() *aws.Config {
	cfg := endpointConfig(s.args.S3EndpointURL)
	if s.args.S3EndpointURL != "" {
		// custom storage endpoints rarely resolve virtual-hosted bucket names
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	return cfg
}

func endpointConfig(url string) *aws.Config {
	cfg := aws.NewConfig()
	if url != "" {
		cfg = cfg.WithEndpoint(url)
	}
	return cfg
}

// AccountID returns the account the session's credentials belong to.
func (s *Session) AccountID(ctx context.Context) (string, error) {
	out, err := s.sts.GetCallerIdentityWithContext(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}
	return aws.StringValue(out.Account), nil
}

// DefaultBucketName is the bucket the platform SDKs upload to when the caller
// does not name one.
func DefaultBucketName(region, accountID string) string {
	return fmt.Sprintf("sagemaker-%s-%s", region, accountID)
}
