package harness

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eiprobe/platform"
)

type fakeIdentity struct{}

func (fakeIdentity) Region() string {
	return "us-west-2"
}

func (fakeIdentity) AccountID(context.Context) (string, error) {
	return "841569659894", nil
}

type fakeStore struct {
	ensured []string
}

func (s *fakeStore) Upload(context.Context, io.Reader, string, string) error {
	return nil
}

func (s *fakeStore) UploadData(context.Context, string, string, string) (string, error) {
	return "", nil
}

func (s *fakeStore) Delete(context.Context, string, string) error {
	return nil
}

func (s *fakeStore) EnsureBucket(_ context.Context, bucket string) error {
	s.ensured = append(s.ensured, bucket)
	return nil
}

func TestValid(t *testing.T) {
	assert.Error(t, HarnessArgs{}.Valid())
	assert.NoError(t, HarnessArgs{Args: platform.Args{Region: "us-west-2"}}.Valid())

	mysql := HarnessArgs{Args: platform.Args{Region: "us-west-2"}, MysqlHost: "localhost:3306"}
	assert.Error(t, mysql.Valid())
	mysql.MysqlDB, mysql.MysqlUsername, mysql.MysqlPassword = "ledger", "smoke", "secret"
	assert.NoError(t, mysql.Valid())
	mysql.LedgerDB = "ledger.db"
	assert.Error(t, mysql.Valid())
}

func TestDefaultBucket(t *testing.T) {
	store := &fakeStore{}
	h := Harness{Identity: fakeIdentity{}, S3Client: store, Logger: zap.NewNop()}

	bucket, err := h.DefaultBucket(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sagemaker-us-west-2-841569659894", bucket)
	assert.Equal(t, []string{bucket}, store.ensured)

	h.Args.Bucket = "my-smoke-bucket"
	bucket, err = h.DefaultBucket(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "my-smoke-bucket", bucket)
	assert.Len(t, store.ensured, 1)
}

func TestCreateFromArgs(t *testing.T) {
	args := HarnessArgs{
		Args:     platform.Args{Region: "us-west-2"},
		LedgerDB: filepath.Join(t.TempDir(), "ledger.db"),
		Dev:      true,
	}
	h, err := CreateFromArgs(&args)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, "us-west-2", h.Identity.Region())
	assert.True(t, h.DB.IsPresent())
	assert.NotNil(t, h.SagemakerClient)
	assert.NotNil(t, h.S3Client)

	_, err = CreateFromArgs(&HarnessArgs{})
	assert.Error(t, err)
}
