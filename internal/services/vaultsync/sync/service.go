// Package sync orchestrates import, export, and re-synchronization of
// characters between the external vault and local storage.
package sync

import (
	"context"
	stderrors "errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rowanvale/sheetsync/internal/platform/errors"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/decode"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/reconcile"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/session"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/storage"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/vault"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	// importAllCap bounds one bulk import to keep worst-case latency sane.
	importAllCap = 50
	// maxExportSlot bounds the slot namespace scanned during export.
	maxExportSlot = 99
)

// playerSlotPattern recognizes player-character slots. Campaign, GM, and
// shared records use other naming conventions and are excluded from bulk
// import.
var playerSlotPattern = regexp.MustCompile(`^character([0-9]+)$`)

// VaultClient is the full vault API surface the orchestrator needs.
type VaultClient interface {
	Login(ctx context.Context, username string, password string) (vault.Session, error)
	GetUserData(ctx context.Context, ticket string) (map[string]vault.Entry, error)
	UpdateUserData(ctx context.Context, ticket string, data map[string]any) error
	Probe(ctx context.Context, ticket string) error
}

// Sealer seals and opens stored vault credentials.
type Sealer interface {
	Seal(value string) (string, error)
	Open(sealed string) (string, error)
}

// Service exposes the vault sync operations to the routing layer.
type Service struct {
	links      storage.AccountLinkStore
	characters storage.CharacterStore
	vault      VaultClient
	sealer     Sealer
	sessions   *session.Manager
	reconciler *reconcile.Reconciler
	tracer     trace.Tracer
	clock      func() time.Time
}

// Config wires the collaborators for a Service.
type Config struct {
	Links      storage.AccountLinkStore
	Characters storage.CharacterStore
	Vault      VaultClient
	Sealer     Sealer
}

// NewService creates the sync orchestrator.
func NewService(cfg Config) *Service {
	return &Service{
		links:      cfg.Links,
		characters: cfg.Characters,
		vault:      cfg.Vault,
		sealer:     cfg.Sealer,
		sessions:   session.NewManager(cfg.Links, cfg.Vault, cfg.Sealer),
		reconciler: reconcile.New(cfg.Characters),
		tracer:     otel.Tracer("sheetsync/vaultsync"),
		clock:      time.Now,
	}
}

// ExternalCharacter describes one vault record without importing it.
type ExternalCharacter struct {
	Key         string
	Name        string
	LastUpdated int64
}

// Listing splits the vault's records into player and campaign kinds.
type Listing struct {
	Players   []ExternalCharacter
	Campaigns []ExternalCharacter
}

// Outcome is the result of one import, sync, or export operation.
type Outcome struct {
	Action    reconcile.Action
	Character storage.Character
}

// ItemOutcome is one entry of a bulk import result. Err is empty on success.
type ItemOutcome struct {
	ExternalID string
	Name       string
	Action     reconcile.Action
	Err        string
}

// ConnectAccount validates vault credentials, seals them, and stores the link.
func (s *Service) ConnectAccount(ctx context.Context, userID string, username string, password string) error {
	ctx, span := s.tracer.Start(ctx, "vaultsync.ConnectAccount")
	defer span.End()

	userID = strings.TrimSpace(userID)
	username = strings.TrimSpace(username)
	if userID == "" {
		return errors.New(errors.CodeUnknown, "user id is required")
	}
	if username == "" || password == "" {
		return errors.New(errors.CodeAuthenticationFailed, "vault username and password are required")
	}

	vaultSession, err := s.vault.Login(ctx, username, password)
	if err != nil {
		return err
	}
	sealed, err := s.sealer.Seal(password)
	if err != nil {
		return errors.Wrap(errors.CodeUnknown, "seal vault credential", err)
	}

	now := s.now()
	link := storage.AccountLink{
		UserID:            userID,
		Username:          username,
		SealedCredential:  sealed,
		Ticket:            vaultSession.Ticket,
		ExternalAccountID: vaultSession.AccountID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.links.PutAccountLink(ctx, link); err != nil {
		return errors.Wrap(errors.CodePersistenceFailure, "store account link", err)
	}
	return nil
}

// DisconnectAccount removes the vault link, clearing credentials and ticket.
// Local characters keep their data; only the account connection goes away.
func (s *Service) DisconnectAccount(ctx context.Context, userID string) error {
	ctx, span := s.tracer.Start(ctx, "vaultsync.DisconnectAccount")
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return errors.New(errors.CodeUnknown, "user id is required")
	}
	if err := s.links.ClearAccountLink(ctx, userID); err != nil {
		return errors.Wrap(errors.CodePersistenceFailure, "clear account link", err)
	}
	return nil
}

// ListCharacters enumerates the vault's records, split into player slots and
// campaign/GM records. Records that fail to decode still appear, named after
// their key.
func (s *Service) ListCharacters(ctx context.Context, userID string) (Listing, error) {
	ctx, span := s.tracer.Start(ctx, "vaultsync.ListCharacters")
	defer span.End()

	ticket, err := s.sessions.EnsureTicket(ctx, userID)
	if err != nil {
		return Listing{}, err
	}
	data, err := s.vault.GetUserData(ctx, ticket)
	if err != nil {
		return Listing{}, err
	}

	listing := Listing{Players: []ExternalCharacter{}, Campaigns: []ExternalCharacter{}}
	for key, entry := range data {
		external := ExternalCharacter{Key: key, Name: key, LastUpdated: entry.LastUpdated}
		if record, err := decode.Decode(key, entry.Value); err == nil {
			external.Name = record.DisplayName
		}
		if playerSlotPattern.MatchString(key) {
			listing.Players = append(listing.Players, external)
		} else {
			listing.Campaigns = append(listing.Campaigns, external)
		}
	}
	sortBySlot(listing.Players)
	sort.Slice(listing.Campaigns, func(i, j int) bool {
		return listing.Campaigns[i].Key < listing.Campaigns[j].Key
	})
	return listing, nil
}

// LinkExisting attaches a vault record to an already-created local character
// and overlays its mechanical facets, preserving the local narrative fields.
func (s *Service) LinkExisting(ctx context.Context, userID string, localCharacterID string, externalID string) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "vaultsync.LinkExisting")
	defer span.End()

	character, err := s.ownedCharacter(ctx, userID, localCharacterID)
	if err != nil {
		return Outcome{}, err
	}
	if other, err := s.characters.GetCharacterByExternalID(ctx, userID, externalID); err == nil && other.ID != character.ID {
		return Outcome{}, errors.WithMetadata(
			errors.CodeNameConflict,
			"vault record is already linked to another character",
			map[string]string{"existing_id": other.ID, "existing_name": other.Name},
		)
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
	// Merge semantics attach the id and keep the local narrative fields.
	input.MergeTargetID = character.ID
	result, err := s.reconciler.Reconcile(ctx, input)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: result.Action, Character: result.Character}, nil
}

// LocalCharacters lists the user's stored characters, linked or not.
func (s *Service) LocalCharacters(ctx context.Context, userID string) ([]storage.Character, error) {
	ctx, span := s.tracer.Start(ctx, "vaultsync.LocalCharacters")
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, errors.New(errors.CodeUnknown, "user id is required")
	}
	characters, err := s.characters.ListCharactersByOwner(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(errors.CodePersistenceFailure, "list characters", err)
	}
	sort.Slice(characters, func(i, j int) bool {
		return characters[i].Name < characters[j].Name
	})
	return characters, nil
}

// GetLocalCharacter returns one of the user's stored characters.
func (s *Service) GetLocalCharacter(ctx context.Context, userID string, characterID string) (storage.Character, error) {
	ctx, span := s.tracer.Start(ctx, "vaultsync.GetLocalCharacter")
	defer span.End()

	return s.ownedCharacter(ctx, userID, characterID)
}

// Unlink detaches a character from its vault record. The local record and
// its last-imported facets survive; only the link goes away.
func (s *Service) Unlink(ctx context.Context, userID string, characterID string) (storage.Character, error) {
	ctx, span := s.tracer.Start(ctx, "vaultsync.Unlink")
	defer span.End()

	character, err := s.ownedCharacter(ctx, userID, characterID)
	if err != nil {
		return storage.Character{}, err
	}
	if err := s.characters.UnlinkCharacter(ctx, character.ID); err != nil {
		return storage.Character{}, errors.Wrap(errors.CodePersistenceFailure, "unlink character", err)
	}
	return s.characters.GetCharacter(ctx, character.ID)
}

// ownedCharacter loads a character and verifies ownership. Foreign characters
// read as not found rather than forbidden.
func (s *Service) ownedCharacter(ctx context.Context, userID string, characterID string) (storage.Character, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(characterID) == "" {
		return storage.Character{}, errors.New(errors.CodeUnknown, "user id and character id are required")
	}
	character, err := s.characters.GetCharacter(ctx, characterID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return storage.Character{}, errors.New(errors.CodeNotFound, "character not found")
		}
		return storage.Character{}, errors.Wrap(errors.CodePersistenceFailure, "load character", err)
	}
	if character.OwnerUserID != strings.TrimSpace(userID) {
		return storage.Character{}, errors.New(errors.CodeNotFound, "character not found")
	}
	return character, nil
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

// sortBySlot orders player slots numerically (character2 before character10).
func sortBySlot(externals []ExternalCharacter) {
	sort.Slice(externals, func(i, j int) bool {
		return slotNumber(externals[i].Key) < slotNumber(externals[j].Key)
	})
}

func slotNumber(key string) int {
	match := playerSlotPattern.FindStringSubmatch(key)
	if match == nil {
		return 0
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return n
}
