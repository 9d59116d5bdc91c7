package sync

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/rowanvale/sheetsync/internal/platform/errors"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/storage"
	"github.com/tidwall/sjson"
)

// ExportOne writes a local character into the first free vault slot and links
// the local record to it. Occupied slots are never overwritten.
func (s *Service) ExportOne(ctx context.Context, userID string, localCharacterID string) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "vaultsync.ExportOne")
	defer span.End()

	character, err := s.ownedCharacter(ctx, userID, localCharacterID)
	if err != nil {
		return Outcome{}, err
	}

	ticket, err := s.sessions.EnsureTicket(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}
	data, err := s.vault.GetUserData(ctx, ticket)
	if err != nil {
		return Outcome{}, err
	}

	slot := ""
	for n := 1; n <= maxExportSlot; n++ {
		candidate := "character" + strconv.Itoa(n)
		if _, occupied := data[candidate]; !occupied {
			slot = candidate
			break
		}
	}
	if slot == "" {
		return Outcome{}, errors.New(errors.CodeExportSlotsFull, "no free vault slot below character100")
	}

	doc, err := externalDocument(character)
	if err != nil {
		return Outcome{}, errors.Wrap(errors.CodeUnknown, "build external document", err)
	}
	payload, err := encodePayload(doc)
	if err != nil {
		return Outcome{}, errors.Wrap(errors.CodeUnknown, "encode external document", err)
	}
	if err := s.vault.UpdateUserData(ctx, ticket, map[string]any{slot: payload}); err != nil {
		return Outcome{}, err
	}

	now := s.now()
	character.ExternalID = slot
	character.LastSynced = &now
	character.UpdatedAt = now
	if err := s.characters.PutCharacter(ctx, character); err != nil {
		return Outcome{}, errors.Wrap(errors.CodePersistenceFailure, "link exported character", err)
	}
	return Outcome{Action: "updated", Character: character}, nil
}

// encodePayload frames a finished document the way the vault stores writes:
// zlib-compressed JSON wrapped in base64, the newest of the formats the
// decoder accepts.
func encodePayload(doc string) (string, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte(doc)); err != nil {
		_ = zw.Close()
		return "", fmt.Errorf("compress document: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("flush compressed document: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// externalDocument reverse-maps a local character into the vault's canonical
// field layout. The paths written here are the first candidates the field
// extractors read, so an export round-trips through import unchanged.
func externalDocument(character storage.Character) (string, error) {
	mechanics := character.Mechanics

	doc := "{}"
	var err error
	set := func(path string, value any) {
		if err != nil {
			return
		}
		doc, err = sjson.Set(doc, path, value)
	}

	set("name", character.Name)
	set("level", mechanics.Level)

	set("abilities.strength", mechanics.Abilities.Strength)
	set("abilities.dexterity", mechanics.Abilities.Dexterity)
	set("abilities.constitution", mechanics.Abilities.Constitution)
	set("abilities.intelligence", mechanics.Abilities.Intelligence)
	set("abilities.wisdom", mechanics.Abilities.Wisdom)
	set("abilities.charisma", mechanics.Abilities.Charisma)

	set("armorClass", mechanics.Combat.ArmorClass)
	set("touchAC", mechanics.Combat.TouchAC)
	set("flatFootedAC", mechanics.Combat.FlatFootedAC)
	set("hitPoints.current", mechanics.Combat.HitPoints)
	set("hitPoints.max", mechanics.Combat.MaxHitPoints)
	set("initiative", mechanics.Combat.Initiative)
	set("speed", mechanics.Combat.Speed)
	set("baseAttackBonus", mechanics.Combat.BaseAttackBonus)

	set("saves.fortitude", mechanics.Saves.Fortitude)
	set("saves.reflex", mechanics.Saves.Reflex)
	set("saves.will", mechanics.Saves.Will)

	skillNames := make([]string, 0, len(mechanics.Skills))
	for name := range mechanics.Skills {
		skillNames = append(skillNames, name)
	}
	sort.Strings(skillNames)
	for _, name := range skillNames {
		skill := mechanics.Skills[name]
		set("skills."+escapePath(name)+".ranks", skill.Ranks)
		set("skills."+escapePath(name)+".total", skill.Total)
		set("skills."+escapePath(name)+".classSkill", skill.ClassSkill)
	}

	set("feats", orEmpty(mechanics.Feats))
	set("specialAbilities", orEmpty(mechanics.Special))
	set("traits", orEmpty(mechanics.Traits))

	if len(mechanics.Weapons) > 0 {
		weapons := make([]map[string]any, 0, len(mechanics.Weapons))
		for _, weapon := range mechanics.Weapons {
			weapons = append(weapons, map[string]any{
				"name":        weapon.Name,
				"attackBonus": weapon.AttackBonus,
				"damage":      weapon.Damage,
				"critical":    weapon.Critical,
				"type":        weapon.Type,
			})
		}
		set("weapons", weapons)
	}
	if len(mechanics.Armor) > 0 {
		pieces := make([]map[string]any, 0, len(mechanics.Armor))
		for _, piece := range mechanics.Armor {
			pieces = append(pieces, map[string]any{
				"name":         piece.Name,
				"acBonus":      piece.ACBonus,
				"type":         piece.Type,
				"checkPenalty": piece.CheckPenalty,
			})
		}
		set("armor", pieces)
	}

	// Spell levels are object keys, not array indexes, so the whole map is
	// set at once rather than through per-level numeric paths.
	if len(mechanics.Spells) > 0 {
		spells := make(map[string][]string, len(mechanics.Spells))
		for level, names := range mechanics.Spells {
			spells[strconv.Itoa(level)] = names
		}
		set("spells", spells)
	}

	if mechanics.Identity.Race != "" {
		set("race", mechanics.Identity.Race)
	}
	if mechanics.Identity.Class != "" {
		set("class", mechanics.Identity.Class)
	}
	if mechanics.Identity.Alignment != "" {
		set("alignment", mechanics.Identity.Alignment)
	}
	if mechanics.Identity.Deity != "" {
		set("deity", mechanics.Identity.Deity)
	}
	set("size", mechanics.Identity.Size)
	if mechanics.Identity.Gender != "" {
		set("gender", mechanics.Identity.Gender)
	}

	if mechanics.Caster.Class != "" {
		set("casterClass", mechanics.Caster.Class)
		set("casterLevel", mechanics.Caster.Level)
		set("concentration", mechanics.Caster.Concentration)
		set("spellPenetration", mechanics.Caster.SpellPenetration)
	}

	if len(mechanics.Defenses.Resistances) > 0 {
		set("resistances", mechanics.Defenses.Resistances)
	}
	if len(mechanics.Defenses.Immunities) > 0 {
		set("immunities", mechanics.Defenses.Immunities)
	}
	if mechanics.Defenses.DamageReduction != "" {
		set("damageReduction", mechanics.Defenses.DamageReduction)
	}
	if mechanics.Defenses.SpellResistance != 0 {
		set("spellResistance", mechanics.Defenses.SpellResistance)
	}

	if character.Bio.Biography != "" {
		set("biography", character.Bio.Biography)
	}
	if character.Bio.Personality != "" {
		set("personality", character.Bio.Personality)
	}
	if character.Bio.Appearance != "" {
		set("appearance", character.Bio.Appearance)
	}
	if character.Bio.Notes != "" {
		set("notes", character.Bio.Notes)
	}
	if character.AvatarURL != "" {
		set("avatarUrl", character.AvatarURL)
	}

	if err != nil {
		return "", err
	}
	return doc, nil
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// escapePath escapes sjson path separators inside skill names.
func escapePath(name string) string {
	name = strings.ReplaceAll(name, `\`, `\\`)
	name = strings.ReplaceAll(name, ".", `\.`)
	return name
}
