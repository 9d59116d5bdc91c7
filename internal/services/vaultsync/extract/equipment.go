package extract

import "github.com/tidwall/gjson"

// Weapon is one normalized weapon entry.
type Weapon struct {
	Name        string
	AttackBonus int
	Damage      string
	Critical    string
	Type        string
}

// Armor is one normalized armor entry.
type Armor struct {
	Name         string
	ACBonus      int
	Type         string
	CheckPenalty int
}

var weaponPaths = []string{"weapons", "equipment.weapons", "combat.weapons"}

var armorPaths = []string{"armor", "equipment.armor", "combat.armor"}

// ExtractWeapons reads the normalized weapon list. Absent data yields an
// empty, non-nil slice.
func ExtractWeapons(doc gjson.Result) []Weapon {
	weapons := []Weapon{}
	collection, ok := firstAt(doc, weaponPaths...)
	if !ok || !collection.IsArray() {
		return weapons
	}
	collection.ForEach(func(_, entry gjson.Result) bool {
		if entry.Type == gjson.String {
			weapons = append(weapons, Weapon{Name: entry.String()})
			return true
		}
		if !entry.IsObject() {
			return true
		}
		name := stringAt(entry, "", "name", "weaponName")
		if name == "" {
			return true
		}
		weapons = append(weapons, Weapon{
			Name:        name,
			AttackBonus: intAt(entry, 0, "attackBonus", "attack", "toHit"),
			Damage:      stringAt(entry, "", "damage", "dmg"),
			Critical:    stringAt(entry, "", "critical", "crit"),
			Type:        stringAt(entry, "", "type", "damageType"),
		})
		return true
	})
	return weapons
}

// ExtractArmor reads the normalized armor list. Absent data yields an empty,
// non-nil slice.
func ExtractArmor(doc gjson.Result) []Armor {
	armor := []Armor{}
	collection, ok := firstAt(doc, armorPaths...)
	if !ok || !collection.IsArray() {
		return armor
	}
	collection.ForEach(func(_, entry gjson.Result) bool {
		if entry.Type == gjson.String {
			armor = append(armor, Armor{Name: entry.String()})
			return true
		}
		if !entry.IsObject() {
			return true
		}
		name := stringAt(entry, "", "name", "armorName")
		if name == "" {
			return true
		}
		armor = append(armor, Armor{
			Name:         name,
			ACBonus:      intAt(entry, 0, "acBonus", "bonus", "ac"),
			Type:         stringAt(entry, "", "type", "category"),
			CheckPenalty: intAt(entry, 0, "checkPenalty", "armorCheckPenalty"),
		})
		return true
	})
	return armor
}
