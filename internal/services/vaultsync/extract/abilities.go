package extract

import "github.com/tidwall/gjson"

// Abilities holds the six ability scores.
type Abilities struct {
	Strength     int
	Dexterity    int
	Constitution int
	Intelligence int
	Wisdom       int
	Charisma     int
}

const defaultAbilityScore = 10

// abilityPaths maps each ability to its candidate paths in precedence order.
var abilityPaths = map[string][]string{
	"strength":     {"abilities.strength", "stats.strength", "statBlock.strength", "strength"},
	"dexterity":    {"abilities.dexterity", "stats.dexterity", "statBlock.dexterity", "dexterity"},
	"constitution": {"abilities.constitution", "stats.constitution", "statBlock.constitution", "constitution"},
	"intelligence": {"abilities.intelligence", "stats.intelligence", "statBlock.intelligence", "intelligence"},
	"wisdom":       {"abilities.wisdom", "stats.wisdom", "statBlock.wisdom", "wisdom"},
	"charisma":     {"abilities.charisma", "stats.charisma", "statBlock.charisma", "charisma"},
}

// ExtractAbilities reads the six ability scores, defaulting each to 10.
func ExtractAbilities(doc gjson.Result) Abilities {
	return Abilities{
		Strength:     intAt(doc, defaultAbilityScore, abilityPaths["strength"]...),
		Dexterity:    intAt(doc, defaultAbilityScore, abilityPaths["dexterity"]...),
		Constitution: intAt(doc, defaultAbilityScore, abilityPaths["constitution"]...),
		Intelligence: intAt(doc, defaultAbilityScore, abilityPaths["intelligence"]...),
		Wisdom:       intAt(doc, defaultAbilityScore, abilityPaths["wisdom"]...),
		Charisma:     intAt(doc, defaultAbilityScore, abilityPaths["charisma"]...),
	}
}

// Modifier computes the ability modifier for a score, rounding down.
func Modifier(score int) int {
	diff := score - 10
	if diff < 0 {
		// Integer division truncates toward zero; odd negative diffs round down.
		return -((-diff + 1) / 2)
	}
	return diff / 2
}
