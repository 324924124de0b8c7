package sagemaker

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs"
)

// maxLogEvents caps the events read per log stream.
const maxLogEvents = 1000

func endpointLogGroup(endpointName string) string {
	return fmt.Sprintf("/aws/sagemaker/Endpoints/%s", endpointName)
}

// EndpointLogs returns the log lines the endpoint's containers wrote, each
// prefixed with its log stream. A missing log group yields no lines.
func (smc SMClient) EndpointLogs(ctx context.Context, endpointName string) ([]string, error) {
	group := endpointLogGroup(endpointName)
	var streams []string
	err := smc.logsClient.DescribeLogStreamsPagesWithContext(ctx, &cloudwatchlogs.DescribeLogStreamsInput{
		LogGroupName: aws.String(group),
	}, func(page *cloudwatchlogs.DescribeLogStreamsOutput, lastPage bool) bool {
		for _, s := range page.LogStreams {
			streams = append(streams, aws.StringValue(s.LogStreamName))
		}
		return true
	})
	if err != nil {
		if e, ok := err.(awserr.Error); ok && e.Code() == cloudwatchlogs.ErrCodeResourceNotFoundException {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to describe log streams of [%s]: %w", group, err)
	}

	var lines []string
	for _, stream := range streams {
		out, err := smc.logsClient.GetLogEventsWithContext(ctx, &cloudwatchlogs.GetLogEventsInput{
			LogGroupName:  aws.String(group),
			LogStreamName: aws.String(stream),
			StartFromHead: aws.Bool(true),
			Limit:         aws.Int64(maxLogEvents),
		})
		if err != nil {
			return lines, fmt.Errorf("failed to get log events of [%s/%s]: %w", group, stream, err)
		}
		for _, e := range out.Events {
			lines = append(lines, fmt.Sprintf("%s: %s", stream, aws.StringValue(e.Message)))
		}
	}
	return lines, nil
}

func (smc SMClient) DeleteEndpointLogs(ctx context.Context, endpointName string) error {
	_, err := smc.logsClient.DeleteLogGroupWithContext(ctx, &cloudwatchlogs.DeleteLogGroupInput{
		LogGroupName: aws.String(endpointLogGroup(endpointName)),
	})
	if err != nil {
		if e, ok := err.(awserr.Error); ok && e.Code() == cloudwatchlogs.ErrCodeResourceNotFoundException {
			return nil
		}
		return fmt.Errorf("failed to delete log group of endpoint [%s]: %w", endpointName, err)
	}
	return nil
}
