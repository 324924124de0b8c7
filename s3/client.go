package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"go.uber.org/zap"

	lib "eiprobe/lib/sagemaker"
	"eiprobe/platform"
)

type Client struct {
	region   string
	api      s3iface.S3API
	uploader s3manageriface.UploaderAPI
	logger   *zap.Logger
}

var _ lib.ArtifactStore = Client{}

func NewClient(sess *platform.Session, logger *zap.Logger) Client {
	api := s3.New(sess.AWS, sess.S3Config())
	return Client{
		region:   sess.Region(),
		api:      api,
		uploader: s3manager.NewUploaderWithClient(api),
		logger:   logger,
	}
}

func (c Client) Upload(ctx context.Context, file io.Reader, key, bucket string) error {
	input := s3manager.UploadInput{
		Body:   file,
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	_, err := c.uploader.UploadWithContext(ctx, &input)
	if err != nil {
		return fmt.Errorf("failed to upload [%s] to bucket [%s]: %w", key, bucket, err)
	}
	return nil
}

// UploadData uploads a local file to `<keyPrefix>/<basename>` and returns the
// S3 URI of the uploaded object.
func (c Client) UploadData(ctx context.Context, localPath, bucket, keyPrefix string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open [%s]: %w", localPath, err)
	}
	defer f.Close()
	key := path.Join(strings.Trim(keyPrefix, "/"), filepath.Base(localPath))
	if err := c.Upload(ctx, f, key, bucket); err != nil {
		return "", err
	}
	uri := lib.S3URI(bucket, key)
	c.logger.Info("uploaded data", zap.String("path", localPath), zap.String("uri", uri))
	return uri, nil
}

// Delete removes an object. Deleting a missing key is not an error.
func (c Client) Delete(ctx context.Context, key, bucket string) error {
	_, err := c.api.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if e, ok := err.(awserr.Error); ok && e.Code() == s3.ErrCodeNoSuchBucket {
			return nil
		}
		return fmt.Errorf("failed to delete [%s] from bucket [%s]: %w", key, bucket, err)
	}
	c.logger.Info("deleted object", zap.String("uri", lib.S3URI(bucket, key)))
	return nil
}

func (c Client) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := c.api.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		if e, ok := err.(awserr.RequestFailure); ok && e.StatusCode() == 404 {
			return false, nil
		}
		return false, fmt.Errorf("failed to check if bucket [%s] exists: %w", bucket, err)
	}
	return true, nil
}

// EnsureBucket creates the bucket in the client's region when it does not
// exist yet.
func (c Client) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	input := s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit location constraint
	if c.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3.CreateBucketConfiguration{
			LocationConstraint: aws.String(c.region),
		}
	}
	_, err = c.api.CreateBucketWithContext(ctx, &input)
	if err != nil {
		if e, ok := err.(awserr.Error); ok && e.Code() == s3.ErrCodeBucketAlreadyOwnedByYou {
			return nil
		}
		return fmt.Errorf("failed to create bucket [%s]: %w", bucket, err)
	}
	c.logger.Info("created bucket", zap.String("bucket", bucket))
	return nil
}
