package gorm

import (
	"database/sql/driver"
	"encoding/hex"
	"strings"

	"github.com/HORNET-Storage/trunk-relay/lib/signing"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// Dialect selects the SQL used for structural tag membership tests
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const selectColumns = "SELECT id, pubkey, created_at, kind, tags, content, sig FROM events"

// Compile translates filters into one parameterized query. Every value that
// originates from a filter is bound through a "?" placeholder. Per-filter
// clauses are ORed; predicates inside one filter are ANDed. Results are
// ordered newest first, ties broken by ascending id.
func Compile(dialect Dialect, filters types.Filters, ceiling int) (string, []interface{}) {
	var args []interface{}
	var clauses []string

	for i := range filters {
		clause := compileFilter(dialect, &filters[i], &args)
		if clause == "" {
			clause = "1 = 1"
		}
		clauses = append(clauses, clause)
	}

	var b strings.Builder
	b.WriteString(selectColumns)

	switch {
	case len(clauses) == 0:
		b.WriteString(" WHERE 0 = 1")
	case allEmpty(filters):
		// unrestricted scan
	case len(clauses) == 1:
		b.WriteString(" WHERE ")
		b.WriteString(clauses[0])
	default:
		b.WriteString(" WHERE (")
		b.WriteString(strings.Join(clauses, ") OR ("))
		b.WriteString(")")
	}

	b.WriteString(" ORDER BY created_at DESC, id ASC LIMIT ?")
	args = append(args, Limit(filters, ceiling))

	return b.String(), args
}

// Limit returns the largest limit requested across filters, clamped to
// ceiling. A filter without a limit asks for the ceiling.
func Limit(filters types.Filters, ceiling int) int {
	limit := -1
	for i := range filters {
		requested := ceiling
		if filters[i].Limit != nil {
			requested = *filters[i].Limit
		}
		if requested > limit {
			limit = requested
		}
	}
	if limit < 0 || limit > ceiling {
		return ceiling
	}
	return limit
}

func allEmpty(filters types.Filters) bool {
	for i := range filters {
		if !filters[i].IsEmpty() {
			return false
		}
	}
	return true
}

func compileFilter(dialect Dialect, f *types.Filter, args *[]interface{}) string {
	var parts []string

	if f.IDs != nil {
		parts = append(parts, hexMembership("id", f.IDs, args))
	}
	if f.Authors != nil {
		parts = append(parts, hexMembership("pubkey", f.Authors, args))
	}
	if f.Kinds != nil {
		if len(f.Kinds) == 0 {
			parts = append(parts, "0 = 1")
		} else {
			values := make([]interface{}, len(f.Kinds))
			for i, kind := range f.Kinds {
				values[i] = int(kind)
			}
			parts = append(parts, "kind IN ("+placeholders(len(values))+")")
			*args = append(*args, values...)
		}
	}
	if f.Since != nil {
		parts = append(parts, "created_at > ?")
		*args = append(*args, *f.Since)
	}
	if f.Until != nil {
		parts = append(parts, "created_at < ?")
		*args = append(*args, *f.Until)
	}
	for _, name := range f.TagNames() {
		values := f.Tags[name]
		if len(values) == 0 {
			parts = append(parts, "0 = 1")
			continue
		}
		parts = append(parts, tagMembership(dialect, len(values)))
		*args = append(*args, name)
		for _, value := range values {
			*args = append(*args, value)
		}
	}

	return strings.Join(parts, " AND ")
}

// hexMembership binds the decoded form of every well formed value. Values
// that can never equal a stored lowercase hex key are dropped, and a list
// left empty compiles to false.
func hexMembership(column string, values []string, args *[]interface{}) string {
	var decoded []interface{}
	for _, value := range values {
		if len(value) != 64 || !signing.IsLowerHex(value) {
			continue
		}
		raw, err := hex.DecodeString(value)
		if err != nil {
			continue
		}
		decoded = append(decoded, hexKey(raw))
	}
	if len(decoded) == 0 {
		return "0 = 1"
	}

	*args = append(*args, decoded...)
	return column + " IN (" + placeholders(len(decoded)) + ")"
}

// hexKey binds a decoded id or pubkey as a single BLOB/bytea value. gorm
// expands a plain []byte that follows "(" into one placeholder per byte.
type hexKey []byte

func (k hexKey) Value() (driver.Value, error) {
	return []byte(k), nil
}

func tagMembership(dialect Dialect, count int) string {
	switch dialect {
	case DialectPostgres:
		return "EXISTS (SELECT 1 FROM jsonb_array_elements(events.tags) AS t(tag) " +
			"WHERE t.tag->>0 = ? AND t.tag->>1 IN (" + placeholders(count) + "))"
	default:
		return "EXISTS (SELECT 1 FROM json_each(events.tags) AS t " +
			"WHERE json_extract(t.value, '$[0]') = ? AND json_extract(t.value, '$[1]') IN (" + placeholders(count) + "))"
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
