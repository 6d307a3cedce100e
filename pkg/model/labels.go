package model

import (
	"errors"
	"fmt"
	"os"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

// DefaultLabels is used when no class index file is shipped next to the model.
var DefaultLabels = []string{"Crazing", "Inclusion", "Patches", "Pitted", "Rolled", "Scratches"}

type Label struct {
	Name  string
	Index int
}

// LoadLabels reads a {"name": index} mapping and returns the labels ordered by
// index. A missing file yields DefaultLabels; an unreadable or inconsistent one
// is an error.
func LoadLabels(path string) ([]Label, bool, error) {
	if path == "" {
		return LabelsFromNames(DefaultLabels), false, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return LabelsFromNames(DefaultLabels), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read class indices: %w", err)
	}

	labels, err := ParseLabels(raw)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse class indices %s: %w", path, err)
	}
	return labels, true, nil
}

func ParseLabels(raw []byte) ([]Label, error) {
	var indices map[string]int
	if err := jsoniter.Unmarshal(raw, &indices); err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return nil, errors.New("no classes defined")
	}

	labels := make([]Label, 0, len(indices))
	for name, idx := range indices {
		labels = append(labels, Label{Name: name, Index: idx})
	}
	sort.Slice(labels, func(i, j int) bool {
		return labels[i].Index < labels[j].Index
	})

	for i, l := range labels {
		if l.Index != i {
			return nil, fmt.Errorf("class indices must be contiguous from 0, found %q at %d where %d was expected", l.Name, l.Index, i)
		}
	}
	return labels, nil
}

func LabelsFromNames(names []string) []Label {
	labels := make([]Label, len(names))
	for i, name := range names {
		labels[i] = Label{Name: name, Index: i}
	}
	return labels
}

func LabelNames(labels []Label) []string {
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
	}
	return names
}
