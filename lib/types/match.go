package types

import "slices"

// Matches reports whether the event satisfies every predicate present on the
// filter. Bounds are exclusive. The compiled SQL form in the event store must
// agree with this function.
func (f *Filter) Matches(e *Event) bool {
	if e == nil {
		return false
	}
	if f.IDs != nil && !slices.Contains(f.IDs, e.ID) {
		return false
	}
	if f.Authors != nil && !slices.Contains(f.Authors, e.PubKey) {
		return false
	}
	if f.Kinds != nil && !slices.Contains(f.Kinds, e.Kind) {
		return false
	}
	if f.Since != nil && e.CreatedAt <= *f.Since {
		return false
	}
	if f.Until != nil && e.CreatedAt >= *f.Until {
		return false
	}
	for name, values := range f.Tags {
		if !hasTagValue(e.Tags, name, values) {
			return false
		}
	}
	return true
}

func hasTagValue(tags Tags, name string, values []string) bool {
	for _, tag := range tags {
		if len(tag) < 2 || tag[0] != name {
			continue
		}
		if slices.Contains(values, tag[1]) {
			return true
		}
	}
	return false
}

// Match reports whether any filter in the list matches the event
func (fs Filters) Match(e *Event) bool {
	for i := range fs {
		if fs[i].Matches(e) {
			return true
		}
	}
	return false
}
