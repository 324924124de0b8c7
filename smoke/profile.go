package smoke

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"eiprobe/lib/tensor"
	"eiprobe/platform"
)

const (
	ProfileDefault  = "default"
	ProfileLoadTest = "loadtest"
)

// Profile fixes every input of a smoke run.
type Profile struct {
	Name                 string        `yaml:"name"`
	Region               string        `yaml:"region"`
	SagemakerEndpointURL string        `yaml:"sagemaker_endpoint_url"`
	RuntimeEndpointURL   string        `yaml:"runtime_endpoint_url"`
	InstanceType         string        `yaml:"instance_type"`
	InstanceCount        uint          `yaml:"instance_count"`
	FrameworkVersion     string        `yaml:"framework_version"`
	PyVersion            string        `yaml:"py_version"`
	Image                string        `yaml:"image"`
	Role                 string        `yaml:"role"`
	KeyPrefix            string        `yaml:"key_prefix"`
	EndpointBase         string        `yaml:"endpoint_base"`
	ResourcesDir         string        `yaml:"resources_dir"`
	Input                tensor.Matrix `yaml:"input"`
	Expected             tensor.Matrix `yaml:"expected"`
	Timeout              time.Duration `yaml:"timeout"`
	// AttachAccelerator attaches the accelerator to the production variant.
	// When false the accelerator type only gates the run and the endpoint is
	// served by the instance alone.
	AttachAccelerator    bool          `yaml:"attach_accelerator"`
}

func DefaultProfile() Profile {
	return Profile{
		Name:             ProfileDefault,
		Region:           "us-west-2",
		InstanceType:     "ml.p3.8xlarge",
		InstanceCount:    1,
		FrameworkVersion: "1.4.1",
		PyVersion:        "py3",
		Image:            "763104351884.dkr.ecr.us-west-2.amazonaws.com/mxnet-inference:1.4.1-gpu-py36-cu100-ubuntu16.04",
		Role:             "arn:aws:iam::841569659894:role/sagemaker-access-role",
		KeyPrefix:        "mxnet-serving/default-handlers",
		EndpointBase:     "mx-model-test",
		ResourcesDir:     "resources",
		Input:            tensor.Matrix{{1, 2}},
		Expected:         tensor.Matrix{{4.9999918937683105}},
		Timeout:           45 * time.Minute,
		AttachAccelerator: true,
	}
}

// LoadTestProfile is DefaultProfile pointed at a load-test environment. The
// control plane and runtime endpoints come from SAGEMAKER_ENDPOINT_URL and
// SAGEMAKER_RUNTIME_ENDPOINT_URL.
func LoadTestProfile() Profile {
	p := DefaultProfile()
	p.Name = ProfileLoadTest
	p.SagemakerEndpointURL = os.Getenv("SAGEMAKER_ENDPOINT_URL")
	p.RuntimeEndpointURL = os.Getenv("SAGEMAKER_RUNTIME_ENDPOINT_URL")
	return p
}

func ProfileByName(name string) (Profile, error) {
	switch name {
	case "", ProfileDefault:
		return DefaultProfile(), nil
	case ProfileLoadTest:
		return LoadTestProfile(), nil
	default:
		return Profile{}, fmt.Errorf("unknown profile [%s]", name)
	}
}

// LoadOverrides reads a YAML file over p. Keys absent from the file keep
// their value in p.
func (p Profile) LoadOverrides(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read profile file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse profile file [%s]: %w", path, err)
	}
	return p, nil
}

// Valid checks p against the session a run will use. Flags may supply the
// region and endpoint URLs the profile leaves empty, so those are read from
// args.
func (p Profile) Valid(args platform.Args) error {
	if args.Region == "" {
		return fmt.Errorf("profile [%s]: region is required", p.Name)
	}
	if p.Name == ProfileLoadTest && (args.SagemakerEndpointURL == "" || args.RuntimeEndpointURL == "") {
		return fmt.Errorf("profile [%s]: SAGEMAKER_ENDPOINT_URL and SAGEMAKER_RUNTIME_ENDPOINT_URL are required", p.Name)
	}
	if len(p.Expected) == 0 {
		return fmt.Errorf("profile [%s]: expected output is required", p.Name)
	}
	return nil
}

// PlatformArgs returns the session arguments of the profile.
func (p Profile) PlatformArgs() platform.Args {
	return platform.Args{
		Region:               p.Region,
		SagemakerEndpointURL: p.SagemakerEndpointURL,
		RuntimeEndpointURL:   p.RuntimeEndpointURL,
	}
}

type Resources struct {
	ModelPath  string
	ScriptPath string
}

// ResolveResources locates the default handler model and its entry point
// under root.
func ResolveResources(root string) (Resources, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Resources{}, err
	}
	handlers := filepath.Join(abs, "default_handlers")
	return Resources{
		ModelPath:  filepath.Join(handlers, "model.tar.gz"),
		ScriptPath: filepath.Join(handlers, "model", "code", "empty_module.py"),
	}, nil
}

func (r Resources) check() error {
	for _, p := range []string{r.ModelPath, r.ScriptPath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("missing resource: %w", err)
		}
	}
	return nil
}
