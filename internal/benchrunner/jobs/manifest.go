package jobs

import (
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/G-Research/benchrunner/internal/benchrunner/errs"
)

// Manifest describes every job of a run. It expands, in declaration order, to
// instance set -> instance -> beta -> repetition.
//
// Example:
//
//	repetitions: 10
//	instanceSets:
//	  - name: solomon
//	    instances: [C101, R101]
//	    betas: ["0.5", "1", "1.5"]
//	  - name: tsplib
//	    instances: [eil51]
//	    betas: ["1"]
//	    repetitions: 3
type Manifest struct {
	// Default number of repetitions of every instance. Repetition ids start at 1.
	Repetitions int           `yaml:"repetitions"`
	InstanceSets []InstanceSet `yaml:"instanceSets"`
}

type InstanceSet struct {
	Name      string   `yaml:"name"`
	Instances []string `yaml:"instances"`
	Betas     []string `yaml:"betas"`
	// Overrides Manifest.Repetitions when positive.
	Repetitions int `yaml:"repetitions"`
}

// ManifestSource loads jobs from a YAML manifest on disk.
type ManifestSource struct {
	Path string
}

func (s *ManifestSource) Jobs() ([]Descriptor, error) {
	manifest, err := ReadManifest(s.Path)
	if err != nil {
		return nil, err
	}
	return manifest.Expand()
}

func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading job manifest %s", path)
	}
	return ParseManifest(data)
}

func ParseManifest(data []byte) (*Manifest, error) {
	manifest := &Manifest{}
	if err := yaml.UnmarshalStrict(data, manifest); err != nil {
		return nil, errors.WithStack(err)
	}
	return manifest, nil
}

// Expand returns the ordered job list. It fails if the manifest would produce
// an invalid path component or two jobs with the same identity.
func (m *Manifest) Expand() ([]Descriptor, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	var result []Descriptor
	seen := make(map[Descriptor]bool)
	var duplicates *multierror.Error
	for _, set := range m.InstanceSets {
		repetitions := m.Repetitions
		if set.Repetitions > 0 {
			repetitions = set.Repetitions
		}
		for _, name := range set.Instances {
			for _, beta := range set.Betas {
				for rep := 1; rep <= repetitions; rep++ {
					d := Descriptor{InstanceSet: set.Name, Name: name, BetaParam: beta, RepetitionId: rep}
					if seen[d] {
						duplicates = multierror.Append(duplicates, &errs.ErrInvalidArgument{
							Name:    "job",
							Value:   d.String(),
							Message: "duplicate job in manifest",
						})
						continue
					}
					seen[d] = true
					result = append(result, d)
				}
			}
		}
	}
	if err := duplicates.ErrorOrNil(); err != nil {
		return nil, errors.WithStack(err)
	}
	return result, nil
}

func (m *Manifest) Validate() error {
	var result *multierror.Error
	if m.Repetitions < 0 {
		result = multierror.Append(result, &errs.ErrInvalidArgument{
			Name:    "repetitions",
			Value:   m.Repetitions,
			Message: "must not be negative",
		})
	}
	for _, set := range m.InstanceSets {
		if err := validatePathComponent("instanceSets.name", set.Name); err != nil {
			result = multierror.Append(result, err)
		}
		for _, name := range set.Instances {
			if err := validatePathComponent("instances", name); err != nil {
				result = multierror.Append(result, err)
			}
		}
		for _, beta := range set.Betas {
			if err := validatePathComponent("betas", beta); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if set.Repetitions < 0 {
			result = multierror.Append(result, &errs.ErrInvalidArgument{
				Name:    set.Name + ".repetitions",
				Value:   set.Repetitions,
				Message: "must not be negative",
			})
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func validatePathComponent(field, value string) error {
	if value == "" {
		return &errs.ErrInvalidArgument{Name: field, Value: value, Message: "must not be empty"}
	}
	if strings.ContainsAny(value, `/\`) || value == "." || value == ".." {
		return &errs.ErrInvalidArgument{Name: field, Value: value, Message: "must be a single path component"}
	}
	return nil
}
