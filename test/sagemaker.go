package test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"eiprobe/harness"
	"eiprobe/platform"
)

// SagemakerHarness returns a harness talking to the real platform with the
// ambient AWS credentials.
func SagemakerHarness(t *testing.T, args platform.Args) harness.Harness {
	flags := harness.HarnessArgs{Args: args, Dev: true}
	h, err := harness.CreateFromArgs(&flags)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}
