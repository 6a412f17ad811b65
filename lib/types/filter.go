package types

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

// Filter is a declarative predicate over event fields. A nil field means the
// predicate is absent; a present but empty list matches nothing.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []uint16
	Since   *int64
	Until   *int64
	Limit   *int

	// Tags is keyed by the single tag character, without the "#" prefix
	Tags map[string][]string
}

type Filters []Filter

// IsEmpty reports whether no predicate is present. Limit is not a predicate.
func (f *Filter) IsEmpty() bool {
	return f.IDs == nil &&
		f.Authors == nil &&
		f.Kinds == nil &&
		f.Since == nil &&
		f.Until == nil &&
		f.Tags == nil
}

// TagNames returns the filtered tag names in a stable order
func (f *Filter) TagNames() []string {
	names := make([]string, 0, len(f.Tags))
	for name := range f.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	var fields map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("invalid filter: expected an object")
	}

	var out Filter
	for key, raw := range fields {
		var err error
		switch key {
		case "ids":
			err = json.Unmarshal(raw, &out.IDs)
		case "authors":
			err = json.Unmarshal(raw, &out.Authors)
		case "kinds":
			err = json.Unmarshal(raw, &out.Kinds)
		case "since":
			err = json.Unmarshal(raw, &out.Since)
		case "until":
			err = json.Unmarshal(raw, &out.Until)
		case "limit":
			err = json.Unmarshal(raw, &out.Limit)
			if err == nil && out.Limit != nil && *out.Limit < 0 {
				err = fmt.Errorf("must not be negative")
			}
		default:
			name, ok := strings.CutPrefix(key, "#")
			if !ok {
				// unknown keys are ignored
				continue
			}
			if utf8.RuneCountInString(name) != 1 {
				return fmt.Errorf("invalid filter: %q is not a single character tag", key)
			}
			var values []string
			if err = json.Unmarshal(raw, &values); err == nil && values != nil {
				if out.Tags == nil {
					out.Tags = make(map[string][]string)
				}
				out.Tags[name] = values
			}
		}
		if err != nil {
			return fmt.Errorf("invalid filter: %s: %w", key, err)
		}
	}

	*f = out
	return nil
}

func (f Filter) MarshalJSON() ([]byte, error) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	fields := make(map[string]interface{})
	if f.IDs != nil {
		fields["ids"] = f.IDs
	}
	if f.Authors != nil {
		fields["authors"] = f.Authors
	}
	if f.Kinds != nil {
		fields["kinds"] = f.Kinds
	}
	if f.Since != nil {
		fields["since"] = *f.Since
	}
	if f.Until != nil {
		fields["until"] = *f.Until
	}
	if f.Limit != nil {
		fields["limit"] = *f.Limit
	}
	for name, values := range f.Tags {
		fields["#"+name] = values
	}
	return json.Marshal(fields)
}
