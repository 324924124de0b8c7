package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lib "eiprobe/lib/sagemaker"
	"eiprobe/lib/tensor"
	"eiprobe/model/ledger"
	"eiprobe/test"
)

const endpointName = "mx-model-test-1571234567-abcd"

func testRequest(t *testing.T) Request {
	entryPoint := filepath.Join(t.TempDir(), "empty_module.py")
	require.NoError(t, os.WriteFile(entryPoint, []byte("# default handlers\n"), 0o644))
	return Request{
		EndpointName:     endpointName,
		ModelData:        "s3://sagemaker-us-west-2-841569659894/mxnet-serving/default-handlers/model.tar.gz",
		EntryPoint:       entryPoint,
		Framework:        lib.FrameworkMXNet,
		FrameworkVersion: "1.4.1",
		PyVersion:        "py3",
		Image:            "763104351884.dkr.ecr.us-west-2.amazonaws.com/mxnet-inference:1.4.1-gpu-py36-cu100-ubuntu16.04",
		Role:             "arn:aws:iam::841569659894:role/sagemaker-access-role",
		InstanceType:     "ml.p3.8xlarge",
		InstanceCount:    1,
		AcceleratorType:  mo.Some("ml.eia1.medium"),
		Bucket:           "sagemaker-us-west-2-841569659894",
	}
}

func TestDeploy(t *testing.T) {
	h := test.NewHarness(t)
	h.Sagemaker.Output = tensor.Matrix{{4.9999918937683105}}
	ctx := context.Background()
	req := testRequest(t)

	predictor, err := Deploy(ctx, h.Harness, req)
	require.NoError(t, err)
	assert.Equal(t, endpointName, predictor.EndpointName)

	assert.Equal(t, []string{
		"Upload:" + endpointName + "/source/sourcedir.tar.gz",
		"CreateModel:" + endpointName,
		"CreateEndpointConfig:" + endpointName,
		"CreateEndpoint:" + endpointName,
		"WaitForEndpoint:" + endpointName,
	}, h.Journal.Ops())

	submitDir := "s3://sagemaker-us-west-2-841569659894/" + endpointName + "/source/sourcedir.tar.gz"
	assert.Contains(t, h.Store.Objects, submitDir)

	model := h.Sagemaker.Models[endpointName]
	assert.Equal(t, req.ModelData, model.ArtifactPath)
	assert.Equal(t, req.Image, model.Image)
	assert.Equal(t, req.Role, model.ExecutionRole)
	assert.Equal(t, map[string]string{
		"SAGEMAKER_PROGRAM":                   "empty_module.py",
		"SAGEMAKER_SUBMIT_DIRECTORY":          submitDir,
		"SAGEMAKER_REGION":                    "us-west-2",
		"SAGEMAKER_CONTAINER_LOG_LEVEL":       "20",
		"SAGEMAKER_ENABLE_CLOUDWATCH_METRICS": "false",
	}, model.Environment)

	cfg := h.Sagemaker.Configs[endpointName]
	assert.Equal(t, endpointName, cfg.ModelName)
	assert.Equal(t, "ml.p3.8xlarge", cfg.InstanceType)
	assert.Equal(t, uint(1), cfg.InstanceCount)
	assert.Equal(t, mo.Some("ml.eia1.medium"), cfg.AcceleratorType)

	conn, _ := h.DB.Get()
	row, err := ledger.Get(conn, endpointName)
	require.NoError(t, err)
	assert.Equal(t, "ml.eia1.medium", row.AcceleratorType)
	assert.Equal(t, req.Bucket, row.SourceBucket)
	assert.Equal(t, int64(1571234567), row.CreatedAt)
	assert.Equal(t, int64(0), row.DeletedAt)

	out, err := predictor.Predict(ctx, tensor.Matrix{{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, tensor.Matrix{{4.9999918937683105}}, out)
	require.Len(t, h.Sagemaker.Requests, 1)
	assert.Equal(t, lib.ContentJSON, h.Sagemaker.Requests[0].ContentType)
	assert.Equal(t, tensor.Matrix{{1, 2}}, h.Sagemaker.Requests[0].Payload)
}

func TestDeploy_Invalid(t *testing.T) {
	h := test.NewHarness(t)
	req := testRequest(t)
	req.InstanceCount = 0
	_, err := Deploy(context.Background(), h.Harness, req)
	assert.Error(t, err)

	req = testRequest(t)
	req.EndpointName = string(make([]byte, lib.MaxNameLength+1))
	_, err = Deploy(context.Background(), h.Harness, req)
	assert.Error(t, err)
	assert.Empty(t, h.Journal.Ops())
}

func TestDeploy_WaitFailed(t *testing.T) {
	h := test.NewHarness(t)
	h.Sagemaker.WaitErr = errors.New("endpoint failed: CUDA not available")

	_, err := Deploy(context.Background(), h.Harness, testRequest(t))
	assert.ErrorIs(t, err, h.Sagemaker.WaitErr)
	// the endpoint exists and is left to the caller to tear down
	assert.Contains(t, h.Sagemaker.Endpoints, endpointName)
}

func TestTeardown(t *testing.T) {
	h := test.NewHarness(t)
	ctx := context.Background()
	_, err := Deploy(ctx, h.Harness, testRequest(t))
	require.NoError(t, err)

	req := testRequest(t)
	h.Mock.Add(90 * time.Second)
	require.NoError(t, Teardown(ctx, h.Harness, endpointName, req.Bucket))
	assert.Empty(t, h.Sagemaker.Endpoints)
	assert.Empty(t, h.Sagemaker.Configs)
	assert.Empty(t, h.Sagemaker.Models)
	assert.Empty(t, h.Store.Objects)
	assert.Equal(t, 1, h.Journal.Count("Delete"))

	conn, _ := h.DB.Get()
	row, err := ledger.Get(conn, endpointName)
	require.NoError(t, err)
	assert.Equal(t, h.Mock.Now().Unix(), row.DeletedAt)

	// everything is already gone
	require.NoError(t, Teardown(ctx, h.Harness, endpointName, req.Bucket))
}

func TestTeardown_NoBucket(t *testing.T) {
	h := test.NewHarness(t)
	ctx := context.Background()
	_, err := Deploy(ctx, h.Harness, testRequest(t))
	require.NoError(t, err)

	require.NoError(t, Teardown(ctx, h.Harness, endpointName, ""))
	assert.Empty(t, h.Sagemaker.Models)
	assert.Len(t, h.Store.Objects, 1)
	assert.Zero(t, h.Journal.Count("Delete"))
}

func TestTeardown_BundleError(t *testing.T) {
	h := test.NewHarness(t)
	ctx := context.Background()
	req := testRequest(t)
	_, err := Deploy(ctx, h.Harness, req)
	require.NoError(t, err)

	h.Store.DeleteErr = errors.New("access denied")
	assert.ErrorIs(t, Teardown(ctx, h.Harness, endpointName, req.Bucket), h.Store.DeleteErr)
	assert.Empty(t, h.Sagemaker.Models)
	conn, _ := h.DB.Get()
	row, err := ledger.Get(conn, endpointName)
	require.NoError(t, err)
	assert.Equal(t, int64(0), row.DeletedAt)
}

func TestTeardown_Error(t *testing.T) {
	h := test.NewHarness(t)
	ctx := context.Background()
	_, err := Deploy(ctx, h.Harness, testRequest(t))
	require.NoError(t, err)

	h.Sagemaker.DeleteEndpointFailures = 1
	assert.Error(t, Teardown(ctx, h.Harness, endpointName, ""))
	// later steps still run
	assert.Empty(t, h.Sagemaker.Models)
	conn, _ := h.DB.Get()
	row, err := ledger.Get(conn, endpointName)
	require.NoError(t, err)
	assert.Equal(t, int64(0), row.DeletedAt)

	require.NoError(t, Teardown(ctx, h.Harness, endpointName, ""))
	row, err = ledger.Get(conn, endpointName)
	require.NoError(t, err)
	assert.NotZero(t, row.DeletedAt)
}
