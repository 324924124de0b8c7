package test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/samber/mo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"eiprobe/db"
	"eiprobe/harness"
	"eiprobe/platform"
)

// Harness is a harness whose remote clients are in-memory fakes, with a
// sqlite ledger and a mock clock.
type Harness struct {
	harness.Harness
	Journal   *Journal
	Sagemaker *FakeSagemaker
	Store     *FakeStore
	Mock      *clock.Mock
}

func NewHarness(t *testing.T) Harness {
	journal := &Journal{}
	mock := clock.NewMock()
	mock.Set(time.Unix(1571234567, 0))
	sm := NewFakeSagemaker(journal, mock)
	store := NewFakeStore(journal)

	r, err := db.SQLiteConfig{
		Path:   filepath.Join(t.TempDir(), "ledger.db"),
		Schema: harness.Schema,
		Fresh:  true,
	}.Materialize()
	require.NoError(t, err)
	conn := r.(db.Connection)
	t.Cleanup(func() { conn.Close() })

	return Harness{
		Harness: harness.Harness{
			Identity:        FakeIdentity{RegionName: "us-west-2", Account: "841569659894"},
			SagemakerClient: sm,
			S3Client:        store,
			DB:              mo.Some(conn),
			Clock:           mock,
			Logger:          zaptest.NewLogger(t),
			Args: harness.HarnessArgs{
				Args: platform.Args{Region: "us-west-2"},
			},
		},
		Journal:   journal,
		Sagemaker: sm,
		Store:     store,
		Mock:      mock,
	}
}
