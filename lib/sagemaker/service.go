package sagemaker

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/raulk/clock"
)

// Endpoint statuses reported by the control plane.
const (
	StatusOutOfService   = "OutOfService"
	StatusCreating       = "Creating"
	StatusUpdating       = "Updating"
	StatusSystemUpdating = "SystemUpdating"
	StatusRollingBack    = "RollingBack"
	StatusInService      = "InService"
	StatusDeleting       = "Deleting"
	StatusFailed         = "Failed"
)

const (
	FrameworkMXNet = "mxnet"
	ContentJSON    = "application/json"

	// MaxNameLength is the longest model, endpoint config or endpoint name
	// the platform accepts.
	MaxNameLength = 63
)

// UniqueNameFromBase returns `<base>-<unix seconds>-<4 hex digits>`, trimming
// base so that the result fits in MaxNameLength.
func UniqueNameFromBase(base string, clk clock.Clock) string {
	unique := fmt.Sprintf("%04x", rand.Intn(1<<16))
	ts := strconv.FormatInt(clk.Now().Unix(), 10)
	available := MaxNameLength - 2 - len(ts) - len(unique)
	if available < len(base) {
		base = base[:available]
	}
	return fmt.Sprintf("%s-%s-%s", base, ts, unique)
}

// SourceDirKey is where the packaged entry point of a model is uploaded.
func SourceDirKey(modelName string) string {
	return fmt.Sprintf("%s/source/sourcedir.tar.gz", modelName)
}

func S3URI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
