package test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/raulk/clock"

	lib "eiprobe/lib/sagemaker"
	"eiprobe/lib/tensor"
	"eiprobe/sagemaker"
)

// Journal records the remote operations fakes receive, in order, as
// "<Operation>:<name>".
type Journal struct {
	lock sync.Mutex
	ops  []string
}

func (j *Journal) add(op, name string) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.ops = append(j.ops, op+":"+name)
}

func (j *Journal) Ops() []string {
	j.lock.Lock()
	defer j.lock.Unlock()
	return append([]string(nil), j.ops...)
}

// Count returns how many recorded operations have the given name.
func (j *Journal) Count(op string) int {
	n := 0
	for _, o := range j.Ops() {
		if strings.HasPrefix(o, op+":") {
			n++
		}
	}
	return n
}

// FakeSagemaker is an in-memory hosting platform. Endpoints become InService
// as soon as they are waited on.
type FakeSagemaker struct {
	lock      sync.Mutex
	journal   *Journal
	clock     clock.Clock
	Models    map[string]lib.Model
	Configs   map[string]lib.EndpointConfig
	Endpoints map[string]lib.EndpointSummary
	Logs      map[string][]string
	Requests  []lib.PredictRequest

	// Output is returned by every prediction.
	Output tensor.Matrix

	CreateEndpointErr error
	WaitErr           error
	PredictErr        error
	// DeleteEndpointFailures fails that many DeleteEndpoint calls first.
	DeleteEndpointFailures int
	// PredictHook runs before a prediction returns, e.g. to block it.
	PredictHook func(ctx context.Context) error
}

var _ lib.Registry = (*FakeSagemaker)(nil)
var _ lib.InferenceServer = (*FakeSagemaker)(nil)
var _ lib.LogSource = (*FakeSagemaker)(nil)

func NewFakeSagemaker(journal *Journal, clk clock.Clock) *FakeSagemaker {
	return &FakeSagemaker{
		journal:   journal,
		clock:     clk,
		Models:    make(map[string]lib.Model),
		Configs:   make(map[string]lib.EndpointConfig),
		Endpoints: make(map[string]lib.EndpointSummary),
		Logs:      make(map[string][]string),
	}
}

func notFound(kind, name string) error {
	return fmt.Errorf("%w: could not find %s \"%s\"", sagemaker.ErrNotFound, kind, name)
}

func (f *FakeSagemaker) CreateModel(_ context.Context, model lib.Model) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.journal.add("CreateModel", model.Name)
	if _, ok := f.Models[model.Name]; ok {
		return fmt.Errorf("model %s already exists", model.Name)
	}
	f.Models[model.Name] = model
	return nil
}

func (f *FakeSagemaker) CreateEndpointConfig(_ context.Context, cfg lib.EndpointConfig) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.journal.add("CreateEndpointConfig", cfg.Name)
	if _, ok := f.Models[cfg.ModelName]; !ok {
		return notFound("model", cfg.ModelName)
	}
	f.Configs[cfg.Name] = cfg
	return nil
}

func (f *FakeSagemaker) CreateEndpoint(_ context.Context, endpoint lib.Endpoint) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.journal.add("CreateEndpoint", endpoint.Name)
	if f.CreateEndpointErr != nil {
		return f.CreateEndpointErr
	}
	if _, ok := f.Configs[endpoint.EndpointConfigName]; !ok {
		return notFound("endpoint configuration", endpoint.EndpointConfigName)
	}
	f.Endpoints[endpoint.Name] = lib.EndpointSummary{
		Name:         endpoint.Name,
		Status:       lib.StatusCreating,
		CreationTime: f.clock.Now().Unix(),
	}
	f.Logs[endpoint.Name] = []string{"AllTraffic/i-0: model server started"}
	return nil
}

func (f *FakeSagemaker) WaitForEndpoint(_ context.Context, endpointName string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.journal.add("WaitForEndpoint", endpointName)
	e, ok := f.Endpoints[endpointName]
	if !ok {
		return notFound("endpoint", endpointName)
	}
	if f.WaitErr != nil {
		e.Status = lib.StatusFailed
		f.Endpoints[endpointName] = e
		return f.WaitErr
	}
	e.Status = lib.StatusInService
	f.Endpoints[endpointName] = e
	return nil
}

func (f *FakeSagemaker) ModelExists(_ context.Context, modelName string) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	_, ok := f.Models[modelName]
	return ok, nil
}

func (f *FakeSagemaker) EndpointConfigExists(_ context.Context, endpointConfigName string) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	_, ok := f.Configs[endpointConfigName]
	return ok, nil
}

func (f *FakeSagemaker) EndpointExists(_ context.Context, endpointName string) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	_, ok := f.Endpoints[endpointName]
	return ok, nil
}

func (f *FakeSagemaker) GetEndpointStatus(_ context.Context, endpointName string) (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	e, ok := f.Endpoints[endpointName]
	if !ok {
		return "", notFound("endpoint", endpointName)
	}
	return e.Status, nil
}

func (f *FakeSagemaker) ListEndpoints(_ context.Context, nameContains string) ([]lib.EndpointSummary, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.journal.add("ListEndpoints", nameContains)
	ret := make([]lib.EndpointSummary, 0, len(f.Endpoints))
	for name, e := range f.Endpoints {
		if strings.Contains(name, nameContains) {
			ret = append(ret, e)
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].CreationTime == ret[j].CreationTime {
			return ret[i].Name < ret[j].Name
		}
		return ret[i].CreationTime < ret[j].CreationTime
	})
	return ret, nil
}

func (f *FakeSagemaker) DeleteModel(_ context.Context, modelName string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.journal.add("DeleteModel", modelName)
	if _, ok := f.Models[modelName]; !ok {
		return notFound("model", modelName)
	}
	delete(f.Models, modelName)
	return nil
}

func (f *FakeSagemaker) DeleteEndpointConfig(_ context.Context, endpointConfigName string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.journal.add("DeleteEndpointConfig", endpointConfigName)
	if _, ok := f.Configs[endpointConfigName]; !ok {
		return notFound("endpoint configuration", endpointConfigName)
	}
	delete(f.Configs, endpointConfigName)
	return nil
}

func (f *FakeSagemaker) DeleteEndpoint(ctx context.Context, endpointName string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.journal.add("DeleteEndpoint", endpointName)
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.DeleteEndpointFailures > 0 {
		f.DeleteEndpointFailures--
		return errors.New("ThrottlingException: rate exceeded")
	}
	if _, ok := f.Endpoints[endpointName]; !ok {
		return notFound("endpoint", endpointName)
	}
	delete(f.Endpoints, endpointName)
	return nil
}

func (f *FakeSagemaker) Predict(ctx context.Context, req *lib.PredictRequest) (*lib.PredictResponse, error) {
	f.lock.Lock()
	f.journal.add("Predict", req.EndpointName)
	f.Requests = append(f.Requests, *req)
	e, ok := f.Endpoints[req.EndpointName]
	hook := f.PredictHook
	f.lock.Unlock()

	if !ok {
		return nil, notFound("endpoint", req.EndpointName)
	}
	if e.Status != lib.StatusInService {
		return nil, fmt.Errorf("endpoint %s is %s", req.EndpointName, e.Status)
	}
	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}
	if f.PredictErr != nil {
		return nil, f.PredictErr
	}
	return &lib.PredictResponse{Output: f.Output}, nil
}

func (f *FakeSagemaker) EndpointLogs(_ context.Context, endpointName string) ([]string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.journal.add("EndpointLogs", endpointName)
	return f.Logs[endpointName], nil
}

func (f *FakeSagemaker) DeleteEndpointLogs(_ context.Context, endpointName string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.journal.add("DeleteEndpointLogs", endpointName)
	delete(f.Logs, endpointName)
	return nil
}

// FakeStore keeps uploaded objects in memory, keyed by S3 URI.
type FakeStore struct {
	lock    sync.Mutex
	journal *Journal
	Objects map[string][]byte
	Buckets map[string]bool
	// UploadErr fails every upload.
	UploadErr error
	// DeleteErr fails every delete.
	DeleteErr error
}

func NewFakeStore(journal *Journal) *FakeStore {
	return &FakeStore{
		journal: journal,
		Objects: make(map[string][]byte),
		Buckets: make(map[string]bool),
	}
}

func (s *FakeStore) Upload(_ context.Context, file io.Reader, key, bucket string) error {
	s.journal.add("Upload", key)
	if s.UploadErr != nil {
		return s.UploadErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.Objects[lib.S3URI(bucket, key)] = buf.Bytes()
	return nil
}

func (s *FakeStore) UploadData(ctx context.Context, localPath, bucket, keyPrefix string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	key := path.Join(strings.Trim(keyPrefix, "/"), filepath.Base(localPath))
	if err := s.Upload(ctx, bytes.NewReader(data), key, bucket); err != nil {
		return "", err
	}
	return lib.S3URI(bucket, key), nil
}

// Delete removes an object. Missing keys are not an error.
func (s *FakeStore) Delete(_ context.Context, key, bucket string) error {
	s.journal.add("Delete", key)
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.Objects, lib.S3URI(bucket, key))
	return nil
}

func (s *FakeStore) EnsureBucket(_ context.Context, bucket string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.journal.add("EnsureBucket", bucket)
	s.Buckets[bucket] = true
	return nil
}

type FakeIdentity struct {
	RegionName string
	Account    string
}

func (i FakeIdentity) Region() string {
	return i.RegionName
}

func (i FakeIdentity) AccountID(context.Context) (string, error) {
	return i.Account, nil
}
