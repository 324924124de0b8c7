package sagemaker

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
)

func TestUniqueNameFromBase(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1571234567, 0))

	name := UniqueNameFromBase("mx-model-test", clk)
	assert.Regexp(t, regexp.MustCompile(`^mx-model-test-1571234567-[0-9a-f]{4}$`), name)

	// names are unique for the same second with high probability
	seen := map[string]struct{}{}
	for i := 0; i < 10; i++ {
		seen[UniqueNameFromBase("mx-model-test", clk)] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}

func TestUniqueNameFromBase_Trims(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1571234567, 0))

	base := strings.Repeat("a", 100)
	name := UniqueNameFromBase(base, clk)
	assert.Len(t, name, MaxNameLength)
	assert.True(t, strings.HasPrefix(name, strings.Repeat("a", 47)+"-1571234567-"))
}

func TestS3Keys(t *testing.T) {
	assert.Equal(t, "mx-model-test-1-abcd/source/sourcedir.tar.gz", SourceDirKey("mx-model-test-1-abcd"))
	assert.Equal(t, "s3://bucket/a/b", S3URI("bucket", "a/b"))
}
