package extract

import "github.com/tidwall/gjson"

// Skill is one trained or untrained skill entry.
type Skill struct {
	Ranks      int
	Total      int
	ClassSkill bool
}

// skillsPaths are candidate locations for the skill collection. The value is
// either an object keyed by skill name or an array of named entries.
var skillsPaths = []string{"skills", "skillInfo.skills", "characterInfo.skills"}

// ExtractSkills reads the skill map. Absent data yields an empty, non-nil map.
func ExtractSkills(doc gjson.Result) map[string]Skill {
	skills := make(map[string]Skill)
	collection, ok := firstAt(doc, skillsPaths...)
	if !ok {
		return skills
	}

	if collection.IsObject() {
		collection.ForEach(func(key, entry gjson.Result) bool {
			if key.String() != "" {
				skills[key.String()] = skillOf(entry)
			}
			return true
		})
		return skills
	}

	if collection.IsArray() {
		collection.ForEach(func(_, entry gjson.Result) bool {
			name := entry.Get("name").String()
			if name != "" {
				skills[name] = skillOf(entry)
			}
			return true
		})
	}
	return skills
}

func skillOf(entry gjson.Result) Skill {
	if entry.Type == gjson.Number {
		// Bare numeric entries carry only the total.
		return Skill{Total: int(entry.Int())}
	}
	return Skill{
		Ranks:      intAt(entry, 0, "ranks", "rank"),
		Total:      intAt(entry, 0, "total", "bonus", "modifier"),
		ClassSkill: entry.Get("classSkill").Bool() || entry.Get("isClassSkill").Bool(),
	}
}
