package domain

// Schema declares the comparable field set for change detection. Branching
// decisions only look at the declared fields, so auxiliary or internal
// properties (ingestion metadata, raw payload blobs) never trigger a new
// version.
type Schema struct {
	Comparable []string
}

// NewSchema builds a schema over the given comparable property names.
func NewSchema(fields ...string) Schema {
	return Schema{Comparable: fields}
}

// Changed reports whether incoming differs from old on any declared field.
// A field missing on one side and present on the other counts as a change.
// An empty schema compares every key of either map.
func (s Schema) Changed(old, incoming Properties) bool {
	if len(s.Comparable) == 0 {
		return propertiesDiffer(old, incoming)
	}
	for _, field := range s.Comparable {
		oldVal, oldOK := old[field]
		newVal, newOK := incoming[field]
		if oldOK != newOK {
			return true
		}
		if oldOK && !oldVal.Equal(newVal) {
			return true
		}
	}
	return false
}

func propertiesDiffer(a, b Properties) bool {
	if len(a) != len(b) {
		return true
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return true
		}
	}
	return false
}
