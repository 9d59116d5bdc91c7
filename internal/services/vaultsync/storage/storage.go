// Package storage defines persistence contracts for vault sync state.
package storage

import (
	"context"
	"time"

	"github.com/rowanvale/sheetsync/internal/platform/errors"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/extract"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// AccountLink stores one user's connection to an external vault account.
// Ticket validity is discovered by use: there is no expiry field.
type AccountLink struct {
	UserID            string
	Username          string
	SealedCredential  string
	Ticket            string
	ExternalAccountID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Bio holds locally-authored narrative fields. A refresh sync never touches
// these; only a full import may overwrite them.
type Bio struct {
	Biography   string
	Personality string
	Appearance  string
	Notes       string
}

// Character is one durable local character record.
type Character struct {
	ID          string
	OwnerUserID string
	Name        string
	// ExternalID links the record to one vault slot. At most one character
	// per owner may carry a given external id.
	ExternalID string
	Mechanics  extract.Character
	Bio        Bio
	AvatarURL  string
	// ExternalRaw is an audit copy of the last decoded vault document,
	// retained only for debugging and support.
	ExternalRaw string
	LastSynced  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AccountLinkStore persists external account links keyed by local user.
type AccountLinkStore interface {
	PutAccountLink(ctx context.Context, link AccountLink) error
	GetAccountLink(ctx context.Context, userID string) (AccountLink, error)
	UpdateTicket(ctx context.Context, userID string, ticket string, now time.Time) error
	ClearAccountLink(ctx context.Context, userID string) error
}

// CharacterStore persists local character records.
type CharacterStore interface {
	PutCharacter(ctx context.Context, character Character) error
	GetCharacter(ctx context.Context, id string) (Character, error)
	ListCharactersByOwner(ctx context.Context, ownerUserID string) ([]Character, error)
	GetCharacterByExternalID(ctx context.Context, ownerUserID string, externalID string) (Character, error)
	// FindUnlinkedByName returns the owner's character whose name matches
	// case-insensitively and whose external id is unset.
	FindUnlinkedByName(ctx context.Context, ownerUserID string, name string) (Character, error)
	// UnlinkCharacter clears the external id and last-synced marker. Sync
	// failures never call this; only an explicit unlink does.
	UnlinkCharacter(ctx context.Context, id string) error
}
