//go:build sagemaker

package smoke

import (
	"context"
	"flag"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eiprobe/lib/tensor"
	"eiprobe/test"
)

var acceleratorType = flag.String("accelerator-type", "", "elastic inference accelerator type, e.g. ml.eia1.medium")

func runOnPlatform(t *testing.T, p Profile) {
	if *acceleratorType == "" {
		t.Skip(ErrSkipped.Error())
	}
	p.ResourcesDir = "../resources"
	h := test.SagemakerHarness(t, p.PlatformArgs())

	result, err := Run(context.Background(), h, p, mo.Some(*acceleratorType))
	require.NoError(t, err)
	assert.Equal(t, tensor.Matrix{{4.9999918937683105}}, result.Output)

	exists, err := h.SagemakerClient.EndpointExists(context.Background(), result.EndpointName)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestElasticInference(t *testing.T) {
	runOnPlatform(t, DefaultProfile())
}

func TestElasticInference_LoadTest(t *testing.T) {
	p := LoadTestProfile()
	if err := p.Valid(p.PlatformArgs()); err != nil {
		t.Skip(err.Error())
	}
	runOnPlatform(t, p)
}
