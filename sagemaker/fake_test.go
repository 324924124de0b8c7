package sagemaker

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs/cloudwatchlogsiface"
	"github.com/aws/aws-sdk-go/service/sagemaker"
	"github.com/aws/aws-sdk-go/service/sagemaker/sagemakeriface"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime/sagemakerruntimeiface"
)

// fakeSagemaker keeps endpoints in memory and fails describes of anything it
// does not know about the way the control plane does.
type fakeSagemaker struct {
	sagemakeriface.SageMakerAPI
	models    map[string]*sagemaker.CreateModelInput
	configs   map[string]*sagemaker.CreateEndpointConfigInput
	endpoints map[string]string
	failure   string
	waitErr   error
	// describesUntilGone is how many describes a deleted endpoint survives
	describesUntilGone int
	summaries          []*sagemaker.EndpointSummary
	listInput          *sagemaker.ListEndpointsInput
}

func newFakeSagemaker() *fakeSagemaker {
	return &fakeSagemaker{
		models:    map[string]*sagemaker.CreateModelInput{},
		configs:   map[string]*sagemaker.CreateEndpointConfigInput{},
		endpoints: map[string]string{},
	}
}

func validation(msg string) error {
	return awserr.New("ValidationException", msg, nil)
}

func (f *fakeSagemaker) CreateModelWithContext(_ aws.Context, in *sagemaker.CreateModelInput, _ ...request.Option) (*sagemaker.CreateModelOutput, error) {
	f.models[aws.StringValue(in.ModelName)] = in
	return &sagemaker.CreateModelOutput{}, nil
}

func (f *fakeSagemaker) DescribeModelWithContext(_ aws.Context, in *sagemaker.DescribeModelInput, _ ...request.Option) (*sagemaker.DescribeModelOutput, error) {
	if _, ok := f.models[aws.StringValue(in.ModelName)]; !ok {
		return nil, validation("Could not find model \"" + aws.StringValue(in.ModelName) + "\".")
	}
	return &sagemaker.DescribeModelOutput{}, nil
}

func (f *fakeSagemaker) DeleteModelWithContext(_ aws.Context, in *sagemaker.DeleteModelInput, _ ...request.Option) (*sagemaker.DeleteModelOutput, error) {
	if _, ok := f.models[aws.StringValue(in.ModelName)]; !ok {
		return nil, validation("Could not find model \"" + aws.StringValue(in.ModelName) + "\".")
	}
	delete(f.models, aws.StringValue(in.ModelName))
	return &sagemaker.DeleteModelOutput{}, nil
}

func (f *fakeSagemaker) CreateEndpointConfigWithContext(_ aws.Context, in *sagemaker.CreateEndpointConfigInput, _ ...request.Option) (*sagemaker.CreateEndpointConfigOutput, error) {
	f.configs[aws.StringValue(in.EndpointConfigName)] = in
	return &sagemaker.CreateEndpointConfigOutput{}, nil
}

func (f *fakeSagemaker) DescribeEndpointConfigWithContext(_ aws.Context, in *sagemaker.DescribeEndpointConfigInput, _ ...request.Option) (*sagemaker.DescribeEndpointConfigOutput, error) {
	if _, ok := f.configs[aws.StringValue(in.EndpointConfigName)]; !ok {
		return nil, validation("Could not find endpoint configuration \"" + aws.StringValue(in.EndpointConfigName) + "\".")
	}
	return &sagemaker.DescribeEndpointConfigOutput{}, nil
}

func (f *fakeSagemaker) DeleteEndpointConfigWithContext(_ aws.Context, in *sagemaker.DeleteEndpointConfigInput, _ ...request.Option) (*sagemaker.DeleteEndpointConfigOutput, error) {
	if _, ok := f.configs[aws.StringValue(in.EndpointConfigName)]; !ok {
		return nil, validation("Could not find endpoint configuration \"" + aws.StringValue(in.EndpointConfigName) + "\".")
	}
	delete(f.configs, aws.StringValue(in.EndpointConfigName))
	return &sagemaker.DeleteEndpointConfigOutput{}, nil
}

func (f *fakeSagemaker) CreateEndpointWithContext(_ aws.Context, in *sagemaker.CreateEndpointInput, _ ...request.Option) (*sagemaker.CreateEndpointOutput, error) {
	f.endpoints[aws.StringValue(in.EndpointName)] = "Creating"
	return &sagemaker.CreateEndpointOutput{}, nil
}

func (f *fakeSagemaker) DescribeEndpointWithContext(_ aws.Context, in *sagemaker.DescribeEndpointInput, _ ...request.Option) (*sagemaker.DescribeEndpointOutput, error) {
	name := aws.StringValue(in.EndpointName)
	status, ok := f.endpoints[name]
	if !ok {
		return nil, validation("Could not find endpoint \"" + name + "\".")
	}
	if status == "Deleting" {
		if f.describesUntilGone == 0 {
			delete(f.endpoints, name)
			return nil, validation("Could not find endpoint \"" + name + "\".")
		}
		f.describesUntilGone--
	}
	out := &sagemaker.DescribeEndpointOutput{EndpointName: in.EndpointName, EndpointStatus: aws.String(status)}
	if status == "Failed" {
		out.FailureReason = aws.String(f.failure)
	}
	return out, nil
}

func (f *fakeSagemaker) DeleteEndpointWithContext(_ aws.Context, in *sagemaker.DeleteEndpointInput, _ ...request.Option) (*sagemaker.DeleteEndpointOutput, error) {
	name := aws.StringValue(in.EndpointName)
	if _, ok := f.endpoints[name]; !ok {
		return nil, validation("Could not find endpoint \"" + name + "\".")
	}
	f.endpoints[name] = "Deleting"
	return &sagemaker.DeleteEndpointOutput{}, nil
}

func (f *fakeSagemaker) WaitUntilEndpointInServiceWithContext(_ aws.Context, in *sagemaker.DescribeEndpointInput, _ ...request.WaiterOption) error {
	if f.waitErr != nil {
		return f.waitErr
	}
	f.endpoints[aws.StringValue(in.EndpointName)] = "InService"
	return nil
}

func (f *fakeSagemaker) ListEndpointsPagesWithContext(_ aws.Context, in *sagemaker.ListEndpointsInput, fn func(*sagemaker.ListEndpointsOutput, bool) bool, _ ...request.Option) error {
	f.listInput = in
	half := len(f.summaries) / 2
	if fn(&sagemaker.ListEndpointsOutput{Endpoints: f.summaries[:half]}, false) {
		fn(&sagemaker.ListEndpointsOutput{Endpoints: f.summaries[half:]}, true)
	}
	return nil
}

type fakeRuntime struct {
	sagemakerruntimeiface.SageMakerRuntimeAPI
	input *sagemakerruntime.InvokeEndpointInput
	body  string
	err   error
}

func (f *fakeRuntime) InvokeEndpointWithContext(_ aws.Context, in *sagemakerruntime.InvokeEndpointInput, _ ...request.Option) (*sagemakerruntime.InvokeEndpointOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sagemakerruntime.InvokeEndpointOutput{
		Body:                     []byte(f.body),
		ContentType:              aws.String("application/json"),
		InvokedProductionVariant: aws.String("AllTraffic"),
	}, nil
}

type fakeLogs struct {
	cloudwatchlogsiface.CloudWatchLogsAPI
	streams map[string][]string
	deleted []string
}

func (f *fakeLogs) DescribeLogStreamsPagesWithContext(_ aws.Context, in *cloudwatchlogs.DescribeLogStreamsInput, fn func(*cloudwatchlogs.DescribeLogStreamsOutput, bool) bool, _ ...request.Option) error {
	if f.streams == nil {
		return awserr.New(cloudwatchlogs.ErrCodeResourceNotFoundException, "The specified log group does not exist.", nil)
	}
	out := &cloudwatchlogs.DescribeLogStreamsOutput{}
	for _, name := range []string{"AllTraffic/i-0", "AllTraffic/i-1"} {
		if _, ok := f.streams[name]; ok {
			out.LogStreams = append(out.LogStreams, &cloudwatchlogs.LogStream{LogStreamName: aws.String(name)})
		}
	}
	fn(out, true)
	return nil
}

func (f *fakeLogs) GetLogEventsWithContext(_ aws.Context, in *cloudwatchlogs.GetLogEventsInput, _ ...request.Option) (*cloudwatchlogs.GetLogEventsOutput, error) {
	out := &cloudwatchlogs.GetLogEventsOutput{}
	for _, msg := range f.streams[aws.StringValue(in.LogStreamName)] {
		out.Events = append(out.Events, &cloudwatchlogs.OutputLogEvent{Message: aws.String(msg)})
	}
	return out, nil
}

func (f *fakeLogs) DeleteLogGroupWithContext(_ aws.Context, in *cloudwatchlogs.DeleteLogGroupInput, _ ...request.Option) (*cloudwatchlogs.DeleteLogGroupOutput, error) {
	if f.streams == nil {
		return nil, awserr.New(cloudwatchlogs.ErrCodeResourceNotFoundException, "The specified log group does not exist.", nil)
	}
	f.deleted = append(f.deleted, aws.StringValue(in.LogGroupName))
	return &cloudwatchlogs.DeleteLogGroupOutput{}, nil
}
