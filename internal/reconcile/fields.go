package reconcile

import (
	"fmt"
	"strings"

	"github.com/FairForge/metavault/internal/sidecar"
)

// Fields names the sidecar fields a pass must ensure are present.
type Fields struct {
	Type         bool
	LastModified bool
	Size         bool
	Dimensions   bool
	AverageColor bool
	Tags         bool
}

var (
	// QuickFields is file attributes plus dimensions
	QuickFields = Fields{Type: true, LastModified: true, Size: true, Dimensions: true}
	// FullFields requests every field
	FullFields = Fields{Type: true, LastModified: true, Size: true, Dimensions: true, AverageColor: true, Tags: true}
)

// ParseFields accepts "quick", "full" or a comma separated list of field
// names (type, lastModified, size, dimensions, averageColor, tags).
func ParseFields(s string) (Fields, error) {
	var f Fields
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quick":
		return QuickFields, nil
	case "full":
		return FullFields, nil
	}

	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		switch strings.ToLower(name) {
		case "":
			continue
		case strings.ToLower(sidecar.FieldType):
			f.Type = true
		case strings.ToLower(sidecar.FieldLastModified):
			f.LastModified = true
		case strings.ToLower(sidecar.FieldSize):
			f.Size = true
		case strings.ToLower(sidecar.FieldDimensions):
			f.Dimensions = true
		case strings.ToLower(sidecar.FieldAverageColor):
			f.AverageColor = true
		case strings.ToLower(sidecar.FieldTags):
			f.Tags = true
		default:
			return Fields{}, fmt.Errorf("unknown field %q", name)
		}
	}
	if !f.Any() {
		return Fields{}, fmt.Errorf("no fields requested in %q", s)
	}
	return f, nil
}

// Any reports whether at least one field is requested
func (f Fields) Any() bool {
	return f.Type || f.LastModified || f.Size || f.Dimensions || f.AverageColor || f.Tags
}

// Names lists the requested fields in record order
func (f Fields) Names() []string {
	var names []string
	for _, p := range f.pairs() {
		if p.requested {
			names = append(names, p.name)
		}
	}
	return names
}

// Missing lists requested fields absent from r
func (f Fields) Missing(r sidecar.Record) []string {
	var missing []string
	for _, p := range f.pairs() {
		if p.requested && !r.Has(p.name) {
			missing = append(missing, p.name)
		}
	}
	return missing
}

func (f Fields) String() string {
	return strings.Join(f.Names(), ",")
}

type fieldPair struct {
	name      string
	requested bool
}

func (f Fields) pairs() []fieldPair {
	return []fieldPair{
		{sidecar.FieldType, f.Type},
		{sidecar.FieldLastModified, f.LastModified},
		{sidecar.FieldSize, f.Size},
		{sidecar.FieldDimensions, f.Dimensions},
		{sidecar.FieldAverageColor, f.AverageColor},
		{sidecar.FieldTags, f.Tags},
	}
}
