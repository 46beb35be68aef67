package jobs

import "fmt"

// Descriptor identifies one solver run: a benchmark instance plus a repetition index.
// Two descriptors in a run never share all four fields.
type Descriptor struct {
	InstanceSet  string
	Name         string
	BetaParam    string
	RepetitionId int
}

// Instance is the instance-set relative name of the benchmark case, without the repetition.
func (d Descriptor) Instance() string {
	return fmt.Sprintf("%s/%s_%s", d.InstanceSet, d.Name, d.BetaParam)
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s %d", d.Instance(), d.RepetitionId)
}

// Source yields the ordered list of jobs for a run.
type Source interface {
	Jobs() ([]Descriptor, error)
}

// StaticSource is a Source backed by a fixed slice.
type StaticSource []Descriptor

func (s StaticSource) Jobs() ([]Descriptor, error) {
	return s, nil
}
