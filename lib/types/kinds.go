package types

// PersistenceClass decides how an event of a given kind is kept by the store.
// It is derived from the kind alone and never stored.
type PersistenceClass int

const (
	Regular PersistenceClass = iota
	Ephemeral
	Replaceable
	ParameterizedReplaceable
)

func (c PersistenceClass) String() string {
	switch c {
	case Regular:
		return "regular"
	case Ephemeral:
		return "ephemeral"
	case Replaceable:
		return "replaceable"
	case ParameterizedReplaceable:
		return "parameterized_replaceable"
	default:
		return "unknown"
	}
}

// Classify maps an event kind to its persistence class.
//
//	20000-29999          ephemeral
//	0, 3, 10000-19999    replaceable
//	30000-39999          parameterized replaceable
//	everything else      regular
func Classify(kind uint16) PersistenceClass {
	switch {
	case kind >= 20000 && kind < 30000:
		return Ephemeral
	case kind == 0 || kind == 3 || (kind >= 10000 && kind < 20000):
		return Replaceable
	case kind >= 30000 && kind < 40000:
		return ParameterizedReplaceable
	default:
		return Regular
	}
}

// EffectiveDTag returns the value of the first "d" tag. A missing "d" tag and a
// "d" tag without a value both yield "".
func EffectiveDTag(tags Tags) string {
	tag, ok := tags.Find("d")
	if !ok {
		return ""
	}
	return tag.Value()
}
