package extract

import (
	"strconv"

	"github.com/tidwall/gjson"
)

// Combat holds armor class, hit points, and related combat numbers.
type Combat struct {
	ArmorClass      int
	TouchAC         int
	FlatFootedAC    int
	HitPoints       int
	MaxHitPoints    int
	Initiative      int
	Speed           int
	BaseAttackBonus int
}

// Saves holds the three saving throw totals.
type Saves struct {
	Fortitude int
	Reflex    int
	Will      int
}

// ExtractCombat reads combat numbers, defaulting AC to 10 and speed to 30.
func ExtractCombat(doc gjson.Result) Combat {
	maxHP := intAt(doc, 0, "hitPoints.max", "hp.max", "combat.hitPoints.max", "maxHp", "maxHitPoints")
	currentHP := intAt(doc, maxHP, "hitPoints.current", "hp.current", "combat.hitPoints.current", "currentHp", "hp")
	return Combat{
		ArmorClass:      intAt(doc, 10, "armorClass", "ac", "combat.armorClass", "combat.ac"),
		TouchAC:         intAt(doc, 10, "touchAC", "armorClassTouch", "combat.touchAC"),
		FlatFootedAC:    intAt(doc, 10, "flatFootedAC", "armorClassFlatFooted", "combat.flatFootedAC"),
		HitPoints:       currentHP,
		MaxHitPoints:    maxHP,
		Initiative:      intAt(doc, 0, "initiative", "combat.initiative", "init"),
		Speed:           intAt(doc, 30, "speed", "combat.speed", "movement.base"),
		BaseAttackBonus: intAt(doc, 0, "baseAttackBonus", "bab", "combat.baseAttackBonus"),
	}
}

// ExtractSaves reads the three saving throws, defaulting each to 0.
func ExtractSaves(doc gjson.Result) Saves {
	return Saves{
		Fortitude: intAt(doc, 0, "saves.fortitude", "savingThrows.fortitude", "fortitude", "fort"),
		Reflex:    intAt(doc, 0, "saves.reflex", "savingThrows.reflex", "reflex", "ref"),
		Will:      intAt(doc, 0, "saves.will", "savingThrows.will", "will"),
	}
}

// levelHistoryPaths are candidate locations of the sparse per-level map,
// keyed by level number ({"1": {...}, "3": {...}}).
var levelHistoryPaths = []string{"characterInfo.levelInfo", "levelInfo", "levels"}

// ExtractLevel reads the character level, defaulting to 1.
//
// Besides plain numeric candidates, the vault stores a sparse level-history
// map whose entries are append records, one per level taken. The effective
// level is the maximum numeric key of that map, not its entry count.
func ExtractLevel(doc gjson.Result) int {
	if level := intAt(doc, 0, "level", "characterLevel", "classInfo.level"); level > 0 {
		return level
	}
	for _, path := range levelHistoryPaths {
		history := doc.Get(path)
		if !history.IsObject() {
			continue
		}
		maxLevel := 0
		history.ForEach(func(key, _ gjson.Result) bool {
			if n, err := strconv.Atoi(key.String()); err == nil && n > maxLevel {
				maxLevel = n
			}
			return true
		})
		if maxLevel > 0 {
			return maxLevel
		}
	}
	return 1
}
