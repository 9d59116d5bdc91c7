// Package reconcile decides how an incoming vault character maps onto local
// records: update the already-linked record, merge into a caller-chosen
// target, surface a name conflict, or create a new record.
//
// The decision order guarantees idempotence: re-importing the same external
// id always lands on the same local record, no matter how the local name was
// edited in the meantime.
package reconcile

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/rowanvale/sheetsync/internal/platform/errors"
	"github.com/rowanvale/sheetsync/internal/platform/id"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/extract"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/storage"
)

// Action describes what the reconciler did.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionMerged  Action = "merged"
)

// Mode selects how much of the local record an update overwrites.
type Mode int

const (
	// FullImport overwrites mechanical and narrative fields alike.
	FullImport Mode = iota
	// RefreshSync overlays mechanical facets only, preserving
	// locally-authored narrative fields and a locally-set avatar.
	RefreshSync
)

// Input carries one extracted vault character into reconciliation.
type Input struct {
	OwnerUserID   string
	ExternalID    string
	DisplayName   string
	Extracted     extract.Character
	Bio           storage.Bio
	AvatarURL     string
	RawJSON       string
	MergeTargetID string
	Mode          Mode
}

// Result is the reconciled local record plus the action taken.
type Result struct {
	Action    Action
	Character storage.Character
}

// Reconciler applies reconciliation decisions to the character store.
type Reconciler struct {
	characters storage.CharacterStore
	clock      func() time.Time
	newID      func() (string, error)
}

// New creates a reconciler backed by the character store.
func New(characters storage.CharacterStore) *Reconciler {
	return &Reconciler{
		characters: characters,
		clock:      time.Now,
		newID:      id.NewID,
	}
}

// Reconcile matches the incoming character against local records and applies
// the resulting create, update, or merge. A name conflict writes nothing and
// returns CodeNameConflict describing the existing record.
func (r *Reconciler) Reconcile(ctx context.Context, in Input) (Result, error) {
	if r == nil || r.characters == nil {
		return Result{}, errors.New(errors.CodeUnknown, "reconciler is not configured")
	}
	ownerUserID := strings.TrimSpace(in.OwnerUserID)
	externalID := strings.TrimSpace(in.ExternalID)
	if ownerUserID == "" {
		return Result{}, errors.New(errors.CodeUnknown, "owner user id is required")
	}
	if externalID == "" {
		return Result{}, errors.New(errors.CodeUnknown, "external id is required")
	}

	now := time.Now()
	if r.clock != nil {
		now = r.clock()
	}

	// An existing link to this external id always wins, keeping re-imports
	// idempotent.
	existing, err := r.characters.GetCharacterByExternalID(ctx, ownerUserID, externalID)
	if err == nil {
		updated := r.overlay(existing, in, now)
		if err := r.characters.PutCharacter(ctx, updated); err != nil {
			return Result{}, errors.Wrap(errors.CodePersistenceFailure, "update character", err)
		}
		return Result{Action: ActionUpdated, Character: updated}, nil
	}
	if !stderrors.Is(err, storage.ErrNotFound) {
		return Result{}, errors.Wrap(errors.CodePersistenceFailure, "look up character by external id", err)
	}

	if mergeTargetID := strings.TrimSpace(in.MergeTargetID); mergeTargetID != "" {
		target, err := r.characters.GetCharacter(ctx, mergeTargetID)
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				return Result{}, errors.New(errors.CodeNotFound, "merge target character not found")
			}
			return Result{}, errors.Wrap(errors.CodePersistenceFailure, "load merge target", err)
		}
		if target.OwnerUserID != ownerUserID {
			return Result{}, errors.New(errors.CodeNotFound, "merge target character not found")
		}

		// A merge attaches the external id and overlays mechanics; the
		// target's narrative fields and name stay as authored.
		merged := target
		merged.ExternalID = externalID
		merged.Mechanics = in.Extracted
		merged.ExternalRaw = in.RawJSON
		merged.LastSynced = &now
		merged.UpdatedAt = now
		if err := r.characters.PutCharacter(ctx, merged); err != nil {
			return Result{}, errors.Wrap(errors.CodePersistenceFailure, "merge character", err)
		}
		return Result{Action: ActionMerged, Character: merged}, nil
	}

	if name := strings.TrimSpace(in.DisplayName); name != "" {
		conflicting, err := r.characters.FindUnlinkedByName(ctx, ownerUserID, name)
		if err == nil {
			return Result{}, errors.WithMetadata(
				errors.CodeNameConflict,
				"a character named "+conflicting.Name+" already exists; re-submit with a merge target or create a new record",
				map[string]string{
					"existing_id":   conflicting.ID,
					"existing_name": conflicting.Name,
				},
			)
		}
		if !stderrors.Is(err, storage.ErrNotFound) {
			return Result{}, errors.Wrap(errors.CodePersistenceFailure, "search for name conflict", err)
		}
	}

	newID, err := r.newID()
	if err != nil {
		return Result{}, errors.Wrap(errors.CodeUnknown, "generate character id", err)
	}
	created := storage.Character{
		ID:          newID,
		OwnerUserID: ownerUserID,
		Name:        in.DisplayName,
		ExternalID:  externalID,
		Mechanics:   in.Extracted,
		Bio:         in.Bio,
		AvatarURL:   in.AvatarURL,
		ExternalRaw: in.RawJSON,
		LastSynced:  &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if created.Name == "" {
		created.Name = externalID
	}
	if err := r.characters.PutCharacter(ctx, created); err != nil {
		return Result{}, errors.Wrap(errors.CodePersistenceFailure, "create character", err)
	}
	return Result{Action: ActionCreated, Character: created}, nil
}

// overlay applies the incoming facets to an existing linked record according
// to the reconcile mode.
func (r *Reconciler) overlay(existing storage.Character, in Input, now time.Time) storage.Character {
	updated := existing
	updated.Mechanics = in.Extracted
	updated.ExternalRaw = in.RawJSON
	updated.LastSynced = &now
	updated.UpdatedAt = now

	if in.Mode == FullImport {
		if name := strings.TrimSpace(in.DisplayName); name != "" {
			updated.Name = name
		}
		updated.Bio = in.Bio
		if in.AvatarURL != "" {
			updated.AvatarURL = in.AvatarURL
		}
		return updated
	}

	// Refresh sync: narrative fields, name, and a locally-set avatar are
	// never touched.
	if existing.AvatarURL == "" && in.AvatarURL != "" {
		updated.AvatarURL = in.AvatarURL
	}
	return updated
}
