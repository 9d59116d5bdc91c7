package extract

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// numericSubKeys are the recognized wrappers for numbers stored as objects,
// tried in order. An object candidate without any of these is treated as
// absent and the next candidate path is tried.
var numericSubKeys = []string{"total", "permanentTotal", "value"}

// intAt resolves the first present numeric candidate among paths.
func intAt(doc gjson.Result, fallback int, paths ...string) int {
	for _, path := range paths {
		value := doc.Get(path)
		if !value.Exists() {
			continue
		}
		if n, ok := numberOf(value); ok {
			return n
		}
	}
	return fallback
}

// stringAt resolves the first present non-empty string candidate among paths.
func stringAt(doc gjson.Result, fallback string, paths ...string) string {
	for _, path := range paths {
		value := doc.Get(path)
		if value.Exists() && value.Type == gjson.String && strings.TrimSpace(value.String()) != "" {
			return value.String()
		}
	}
	return fallback
}

// firstAt resolves the first existing candidate among paths, regardless of type.
func firstAt(doc gjson.Result, paths ...string) (gjson.Result, bool) {
	for _, path := range paths {
		value := doc.Get(path)
		if value.Exists() {
			return value, true
		}
	}
	return gjson.Result{}, false
}

// numberOf coerces one candidate value to an int. Bare numbers, recognized
// object wrappers, and numeric strings are accepted; anything else is absent.
func numberOf(value gjson.Result) (int, bool) {
	switch value.Type {
	case gjson.Number:
		return int(value.Int()), true
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(value.String()))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	if value.IsObject() {
		for _, key := range numericSubKeys {
			sub := value.Get(key)
			if sub.Exists() {
				if n, ok := numberOf(sub); ok {
					return n, true
				}
			}
		}
	}
	return 0, false
}

// dedupe returns values with exact duplicates removed, order preserved.
// Matching is case-sensitive: the vault repeats the same feat verbatim under
// multiple per-level entries, and that is the duplication being collapsed.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	deduped := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		deduped = append(deduped, v)
	}
	return deduped
}

// stringList normalizes an array of strings or named objects into a string
// slice. Object entries contribute their name field.
func stringList(value gjson.Result) []string {
	var values []string
	if !value.Exists() {
		return values
	}
	value.ForEach(func(_, item gjson.Result) bool {
		switch {
		case item.Type == gjson.String:
			values = append(values, item.String())
		case item.IsObject():
			if name := item.Get("name"); name.Exists() && name.String() != "" {
				values = append(values, name.String())
			}
		}
		return true
	})
	return values
}
