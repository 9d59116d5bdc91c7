package extract

import "github.com/tidwall/gjson"

// Identity holds basic descriptive identity fields.
type Identity struct {
	Race      string
	Class     string
	Alignment string
	Deity     string
	Size      string
	Gender    string
}

// Defenses holds defensive ability fields.
type Defenses struct {
	Resistances     []string
	Immunities      []string
	DamageReduction string
	SpellResistance int
}

// ExtractIdentity reads descriptive identity strings, defaulting size to
// Medium. These fields pass through unmodified on import; they are not
// narrative fields.
func ExtractIdentity(doc gjson.Result) Identity {
	return Identity{
		Race:      stringAt(doc, "", "race", "basicInfo.race", "characterInfo.race"),
		Class:     stringAt(doc, "", "class", "className", "basicInfo.class", "classInfo.name"),
		Alignment: stringAt(doc, "", "alignment", "basicInfo.alignment"),
		Deity:     stringAt(doc, "", "deity", "basicInfo.deity"),
		Size:      stringAt(doc, "Medium", "size", "basicInfo.size"),
		Gender:    stringAt(doc, "", "gender", "basicInfo.gender"),
	}
}

// ExtractDefenses reads defensive abilities. List fields are deduplicated.
func ExtractDefenses(doc gjson.Result) Defenses {
	resistances := []string{}
	if collection, ok := firstAt(doc, "resistances", "defenses.resistances"); ok {
		resistances = dedupe(stringList(collection))
	}
	immunities := []string{}
	if collection, ok := firstAt(doc, "immunities", "defenses.immunities"); ok {
		immunities = dedupe(stringList(collection))
	}
	return Defenses{
		Resistances:     resistances,
		Immunities:      immunities,
		DamageReduction: stringAt(doc, "", "damageReduction", "defenses.damageReduction", "dr"),
		SpellResistance: intAt(doc, 0, "spellResistance", "defenses.spellResistance", "sr"),
	}
}
