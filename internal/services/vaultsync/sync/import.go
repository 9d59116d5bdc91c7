package sync

import (
	"context"
	"strings"

	"github.com/rowanvale/sheetsync/internal/platform/errors"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/decode"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/extract"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/reconcile"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/storage"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/vault"
	"github.com/tidwall/gjson"
)

// ImportOne imports a single vault record. When the extracted name collides
// with an unlinked local character, the returned error carries
// CodeNameConflict and the caller must resubmit with mergeTargetID.
func (s *Service) ImportOne(ctx context.Context, userID string, externalID string, mergeTargetID string) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "vaultsync.ImportOne")
	defer span.End()

	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return Outcome{}, errors.New(errors.CodeUnknown, "external id is required")
	}

	ticket, err := s.sessions.EnsureTicket(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}
	data, err := s.vault.GetUserData(ctx, ticket)
	if err != nil {
		return Outcome{}, err
	}
	entry, ok := data[externalID]
	if !ok {
		return Outcome{}, errors.New(errors.CodeRecordNotFound, "vault has no record "+externalID)
	}

	input, err := s.reconcileInput(userID, externalID, entry)
	if err != nil {
		return Outcome{}, err
	}
	input.MergeTargetID = mergeTargetID
	result, err := s.reconciler.Reconcile(ctx, input)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: result.Action, Character: result.Character}, nil
}

// ImportAll imports every player-character slot, sequentially and capped.
// Failures are isolated per item; the batch always runs to completion.
func (s *Service) ImportAll(ctx context.Context, userID string) ([]ItemOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "vaultsync.ImportAll")
	defer span.End()

	ticket, err := s.sessions.EnsureTicket(ctx, userID)
	if err != nil {
		return nil, err
	}
	data, err := s.vault.GetUserData(ctx, ticket)
	if err != nil {
		return nil, err
	}

	var keys []string
	for key := range data {
		if playerSlotPattern.MatchString(key) {
			keys = append(keys, key)
		}
	}
	externals := make([]ExternalCharacter, 0, len(keys))
	for _, key := range keys {
		externals = append(externals, ExternalCharacter{Key: key})
	}
	sortBySlot(externals)
	if len(externals) > importAllCap {
		externals = externals[:importAllCap]
	}

	outcomes := make([]ItemOutcome, 0, len(externals))
	for _, external := range externals {
		outcome := ItemOutcome{ExternalID: external.Key}

		input, err := s.reconcileInput(userID, external.Key, data[external.Key])
		if err != nil {
			outcome.Err = err.Error()
			outcomes = append(outcomes, outcome)
			continue
		}
		outcome.Name = input.DisplayName

		result, err := s.reconciler.Reconcile(ctx, input)
		if err != nil {
			outcome.Err = err.Error()
			outcomes = append(outcomes, outcome)
			continue
		}
		outcome.Action = result.Action
		outcome.Name = result.Character.Name
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// RefreshSync re-imports an already-linked character's mechanical facets,
// leaving locally-authored narrative fields and avatar untouched.
func (s *Service) RefreshSync(ctx context.Context, userID string, localCharacterID string) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "vaultsync.RefreshSync")
	defer span.End()

	character, err := s.ownedCharacter(ctx, userID, localCharacterID)
	if err != nil {
		return Outcome{}, err
	}
	if strings.TrimSpace(character.ExternalID) == "" {
		return Outcome{}, errors.New(errors.CodeRecordNotFound, "character is not linked to a vault record")
	}

	ticket, err := s.sessions.EnsureTicket(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}
	data, err := s.vault.GetUserData(ctx, ticket)
	if err != nil {
		return Outcome{}, err
	}
	entry, ok := data[character.ExternalID]
	if !ok {
		return Outcome{}, errors.New(errors.CodeRecordNotFound, "vault has no record "+character.ExternalID)
	}

	input, err := s.reconcileInput(userID, character.ExternalID, entry)
	if err != nil {
		return Outcome{}, err
	}
	input.Mode = reconcile.RefreshSync
	result, err := s.reconciler.Reconcile(ctx, input)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: result.Action, Character: result.Character}, nil
}

// reconcileInput decodes and extracts one vault entry into reconciler input.
func (s *Service) reconcileInput(userID string, externalID string, entry vault.Entry) (reconcile.Input, error) {
	record, err := decode.Decode(externalID, entry.Value)
	if err != nil {
		return reconcile.Input{}, err
	}
	return reconcile.Input{
		OwnerUserID: userID,
		ExternalID:  externalID,
		DisplayName: record.DisplayName,
		Extracted:   extract.Extract(record.Doc),
		Bio:         bioOf(record),
		AvatarURL:   avatarOf(record),
		RawJSON:     string(record.JSON),
		Mode:        reconcile.FullImport,
	}, nil
}

// bioOf lifts pass-through narrative fields from the decoded document.
func bioOf(record decode.Record) storage.Bio {
	doc := record.Doc
	return storage.Bio{
		Biography:   firstString(doc, "biography", "bio", "background"),
		Personality: firstString(doc, "personality"),
		Appearance:  firstString(doc, "appearance", "description"),
		Notes:       firstString(doc, "notes"),
	}
}

func avatarOf(record decode.Record) string {
	return firstString(record.Doc, "avatarUrl", "avatar", "portraitUrl")
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, path := range paths {
		if value := doc.Get(path); value.Exists() && value.Type == gjson.String && value.String() != "" {
			return value.String()
		}
	}
	return ""
}
