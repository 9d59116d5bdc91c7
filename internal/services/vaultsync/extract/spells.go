package extract

import (
	"strconv"

	"github.com/tidwall/gjson"
)

// Caster holds spellcasting identity fields.
type Caster struct {
	Class            string
	Level            int
	Concentration    int
	SpellPenetration int
}

var spellPaths = []string{"spells", "spellInfo.spells", "spellbook"}

// ExtractSpells reads known spells keyed by spell level. The collection is
// either an object keyed by level number or an array of {name, level}
// entries; both normalize to the same map. Absent data yields an empty,
// non-nil map.
func ExtractSpells(doc gjson.Result) map[int][]string {
	spells := make(map[int][]string)
	collection, ok := firstAt(doc, spellPaths...)
	if !ok {
		return spells
	}

	if collection.IsObject() {
		collection.ForEach(func(key, entry gjson.Result) bool {
			level, err := strconv.Atoi(key.String())
			if err != nil {
				return true
			}
			if names := dedupe(stringList(entry)); len(names) > 0 {
				spells[level] = names
			}
			return true
		})
		return spells
	}

	if collection.IsArray() {
		collection.ForEach(func(_, entry gjson.Result) bool {
			name := stringAt(entry, "", "name", "spellName")
			if name == "" {
				return true
			}
			level := intAt(entry, 0, "level", "spellLevel")
			spells[level] = append(spells[level], name)
			return true
		})
		for level, names := range spells {
			spells[level] = dedupe(names)
		}
	}
	return spells
}

// ExtractCaster reads spellcasting fields, defaulting the caster level to the
// character level when a caster class is present and to 0 otherwise.
func ExtractCaster(doc gjson.Result) Caster {
	class := stringAt(doc, "", "casterClass", "spellInfo.casterClass", "casterInfo.class")
	level := intAt(doc, 0, "casterLevel", "spellInfo.casterLevel", "casterInfo.level")
	if class != "" && level == 0 {
		level = ExtractLevel(doc)
	}
	return Caster{
		Class:            class,
		Level:            level,
		Concentration:    intAt(doc, 0, "concentration", "spellInfo.concentration"),
		SpellPenetration: intAt(doc, 0, "spellPenetration", "spellInfo.spellPenetration"),
	}
}
