// Package extract projects typed character facets out of decoded vault documents.
//
// The vault has no schema contract: field names, nesting, and types vary
// across records and over time. Every extractor is total — it never fails,
// and absent or mistyped fields fall back to deterministic defaults. Each
// sub-value is resolved from an ordered candidate-path table, first present
// wins, so the fallback order is testable independent of extraction logic.
package extract

import "github.com/tidwall/gjson"

// Character is the full set of facets extracted from one vault record.
type Character struct {
	Abilities Abilities
	Combat    Combat
	Saves     Saves
	Level     int
	Skills    map[string]Skill
	Feats     []string
	Special   []string
	Traits    []string
	Weapons   []Weapon
	Armor     []Armor
	Spells    map[int][]string
	Identity  Identity
	Caster    Caster
	Defenses  Defenses
}

// Extract runs every facet extractor over doc.
func Extract(doc gjson.Result) Character {
	return Character{
		Abilities: ExtractAbilities(doc),
		Combat:    ExtractCombat(doc),
		Saves:     ExtractSaves(doc),
		Level:     ExtractLevel(doc),
		Skills:    ExtractSkills(doc),
		Feats:     ExtractFeats(doc),
		Special:   ExtractSpecial(doc),
		Traits:    ExtractTraits(doc),
		Weapons:   ExtractWeapons(doc),
		Armor:     ExtractArmor(doc),
		Spells:    ExtractSpells(doc),
		Identity:  ExtractIdentity(doc),
		Caster:    ExtractCaster(doc),
		Defenses:  ExtractDefenses(doc),
	}
}
