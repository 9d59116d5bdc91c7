package extract

import "github.com/tidwall/gjson"

// featPaths are candidate locations of the top-level feat list.
var featPaths = []string{"feats", "characterInfo.feats", "featInfo.feats"}

// specialPaths are candidate locations of the special-ability list.
var specialPaths = []string{"specialAbilities", "characterInfo.specialAbilities", "abilitiesInfo.special"}

// traitPaths are candidate locations of the trait list.
var traitPaths = []string{"traits", "characterInfo.traits"}

// ExtractFeats reads the deduplicated feat list.
//
// Feats appear both in a top-level list and inside per-level history entries;
// the same feat repeats verbatim for every level that granted it, so the
// combined list is deduplicated by exact match.
func ExtractFeats(doc gjson.Result) []string {
	return collectNamed(doc, featPaths, "feats")
}

// ExtractSpecial reads the deduplicated special-ability list.
func ExtractSpecial(doc gjson.Result) []string {
	return collectNamed(doc, specialPaths, "specialAbilities")
}

// ExtractTraits reads the deduplicated trait list.
func ExtractTraits(doc gjson.Result) []string {
	return collectNamed(doc, traitPaths, "traits")
}

// collectNamed gathers entries from the first present top-level candidate and
// from every per-level history entry, then deduplicates the result.
func collectNamed(doc gjson.Result, paths []string, levelEntryKey string) []string {
	var values []string
	if collection, ok := firstAt(doc, paths...); ok {
		values = append(values, stringList(collection)...)
	}
	for _, historyPath := range levelHistoryPaths {
		history := doc.Get(historyPath)
		if !history.IsObject() {
			continue
		}
		history.ForEach(func(_, entry gjson.Result) bool {
			values = append(values, stringList(entry.Get(levelEntryKey))...)
			return true
		})
		break
	}
	return dedupe(values)
}
