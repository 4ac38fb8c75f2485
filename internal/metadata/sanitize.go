package metadata

const unsetSentinel = "__unset"

// objectSentinelFields are the keys whose "__unset" sentinel is replaced
// with an empty JSON object (spec.md §4.3).
var objectSentinelFields = map[string]bool{
	"require":        true,
	"require-dev":    true,
	"suggest":        true,
	"provide":        true,
	"replace":        true,
	"conflict":       true,
	"autoload":       true,
	"autoload-dev":   true,
	"extra":          true,
}

// arraySentinelFields are the keys whose "__unset" sentinel is replaced
// with an empty JSON array (spec.md §4.3).
var arraySentinelFields = map[string]bool{
	"bin":           true,
	"license":       true,
	"authors":       true,
	"keywords":      true,
	"repositories":  true,
	"include-path":  true,
}

// sanitizeEntry mutates a version entry in place: any key (listed or not)
// holding the literal sentinel "__unset" is replaced with an empty
// collection for the enumerated fields above, and dropped entirely for
// every other key. An invalid "source" field (non-object, null, or the
// sentinel) is removed.
func sanitizeEntry(entry map[string]any) {
	for key, val := range entry {
		s, isString := val.(string)
		if !isString || s != unsetSentinel {
			continue
		}
		switch {
		case objectSentinelFields[key]:
			entry[key] = map[string]any{}
		case arraySentinelFields[key]:
			entry[key] = []any{}
		default:
			delete(entry, key)
		}
	}

	if src, ok := entry["source"]; ok && !isValidSource(src) {
		delete(entry, "source")
	}
}

func isValidSource(v any) bool {
	if v == nil {
		return false
	}
	if _, isString := v.(string); isString {
		return false
	}
	_, isObject := v.(map[string]any)
	return isObject
}
