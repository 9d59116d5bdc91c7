// Package sqlite provides a SQLite-backed vault sync storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/rowanvale/sheetsync/internal/platform/storage/sqlitemigrate"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/extract"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/storage"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists vault sync state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutAccountLink upserts one user's vault account link.
func (s *Store) PutAccountLink(ctx context.Context, link storage.AccountLink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID := strings.TrimSpace(link.UserID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(link.Username) == "" {
		return fmt.Errorf("vault username is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO account_links (user_id, username, sealed_credential, ticket, external_account_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   username = excluded.username,
		   sealed_credential = excluded.sealed_credential,
		   ticket = excluded.ticket,
		   external_account_id = excluded.external_account_id,
		   updated_at = excluded.updated_at`,
		userID,
		link.Username,
		link.SealedCredential,
		link.Ticket,
		link.ExternalAccountID,
		toMillis(link.CreatedAt),
		toMillis(link.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put account link: %w", err)
	}
	return nil
}

// GetAccountLink returns one user's vault account link.
func (s *Store) GetAccountLink(ctx context.Context, userID string) (storage.AccountLink, error) {
	if err := ctx.Err(); err != nil {
		return storage.AccountLink{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.AccountLink{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.AccountLink{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT user_id, username, sealed_credential, ticket, external_account_id, created_at, updated_at
		 FROM account_links
		 WHERE user_id = ?`,
		userID,
	)
	var link storage.AccountLink
	var createdAt, updatedAt int64
	err := row.Scan(
		&link.UserID,
		&link.Username,
		&link.SealedCredential,
		&link.Ticket,
		&link.ExternalAccountID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return storage.AccountLink{}, storage.ErrNotFound
		}
		return storage.AccountLink{}, fmt.Errorf("get account link: %w", err)
	}
	link.CreatedAt = fromMillis(createdAt)
	link.UpdatedAt = fromMillis(updatedAt)
	return link, nil
}

// UpdateTicket persists a refreshed session ticket for one user.
func (s *Store) UpdateTicket(ctx context.Context, userID string, ticket string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE account_links SET ticket = ?, updated_at = ? WHERE user_id = ?`,
		ticket,
		toMillis(now),
		userID,
	)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ticket rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ClearAccountLink deletes one user's vault account link.
func (s *Store) ClearAccountLink(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM account_links WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear account link: %w", err)
	}
	return nil
}

const characterColumns = `id, owner_user_id, name, external_id, mechanics,
biography, personality, appearance, notes, avatar_url, external_raw,
last_synced, created_at, updated_at`

// PutCharacter upserts one local character record.
func (s *Store) PutCharacter(ctx context.Context, character storage.Character) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(character.ID) == "" {
		return fmt.Errorf("character id is required")
	}
	if strings.TrimSpace(character.OwnerUserID) == "" {
		return fmt.Errorf("owner user id is required")
	}
	if strings.TrimSpace(character.Name) == "" {
		return fmt.Errorf("character name is required")
	}

	mechanics, err := json.Marshal(character.Mechanics)
	if err != nil {
		return fmt.Errorf("marshal mechanics: %w", err)
	}
	var lastSynced any
	if character.LastSynced != nil {
		lastSynced = toMillis(*character.LastSynced)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO characters (`+characterColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   external_id = excluded.external_id,
		   mechanics = excluded.mechanics,
		   biography = excluded.biography,
		   personality = excluded.personality,
		   appearance = excluded.appearance,
		   notes = excluded.notes,
		   avatar_url = excluded.avatar_url,
		   external_raw = excluded.external_raw,
		   last_synced = excluded.last_synced,
		   updated_at = excluded.updated_at`,
		character.ID,
		character.OwnerUserID,
		character.Name,
		character.ExternalID,
		string(mechanics),
		character.Bio.Biography,
		character.Bio.Personality,
		character.Bio.Appearance,
		character.Bio.Notes,
		character.AvatarURL,
		character.ExternalRaw,
		lastSynced,
		toMillis(character.CreatedAt),
		toMillis(character.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put character: %w", err)
	}
	return nil
}

// GetCharacter returns one character by id.
func (s *Store) GetCharacter(ctx context.Context, id string) (storage.Character, error) {
	if err := ctx.Err(); err != nil {
		return storage.Character{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Character{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Character{}, fmt.Errorf("character id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+characterColumns+` FROM characters WHERE id = ?`, id)
	return scanCharacter(row)
}

// ListCharactersByOwner returns every character owned by one user, oldest first.
func (s *Store) ListCharactersByOwner(ctx context.Context, ownerUserID string) ([]storage.Character, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return nil, fmt.Errorf("owner user id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+characterColumns+` FROM characters WHERE owner_user_id = ? ORDER BY created_at, id`,
		ownerUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var characters []storage.Character
	for rows.Next() {
		character, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		characters = append(characters, character)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	return characters, nil
}

// GetCharacterByExternalID returns the owner's character linked to externalID.
func (s *Store) GetCharacterByExternalID(ctx context.Context, ownerUserID string, externalID string) (storage.Character, error) {
	if err := ctx.Err(); err != nil {
		return storage.Character{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Character{}, fmt.Errorf("storage is not configured")
	}
	ownerUserID = strings.TrimSpace(ownerUserID)
	externalID = strings.TrimSpace(externalID)
	if ownerUserID == "" {
		return storage.Character{}, fmt.Errorf("owner user id is required")
	}
	if externalID == "" {
		return storage.Character{}, fmt.Errorf("external id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+characterColumns+` FROM characters WHERE owner_user_id = ? AND external_id = ?`,
		ownerUserID,
		externalID,
	)
	return scanCharacter(row)
}

// FindUnlinkedByName returns the owner's unlinked character with a
// case-insensitive exact name match.
func (s *Store) FindUnlinkedByName(ctx context.Context, ownerUserID string, name string) (storage.Character, error) {
	if err := ctx.Err(); err != nil {
		return storage.Character{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Character{}, fmt.Errorf("storage is not configured")
	}
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return storage.Character{}, fmt.Errorf("owner user id is required")
	}
	if strings.TrimSpace(name) == "" {
		return storage.Character{}, fmt.Errorf("character name is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+characterColumns+` FROM characters
		 WHERE owner_user_id = ? AND external_id = '' AND LOWER(name) = LOWER(?)
		 ORDER BY created_at, id
		 LIMIT 1`,
		ownerUserID,
		name,
	)
	return scanCharacter(row)
}

// UnlinkCharacter clears the external id and last-synced marker for one character.
func (s *Store) UnlinkCharacter(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("character id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE characters SET external_id = '', last_synced = NULL, updated_at = ? WHERE id = ?`,
		toMillis(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("unlink character: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unlink character rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCharacter(row rowScanner) (storage.Character, error) {
	var character storage.Character
	var mechanics string
	var lastSynced sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(
		&character.ID,
		&character.OwnerUserID,
		&character.Name,
		&character.ExternalID,
		&mechanics,
		&character.Bio.Biography,
		&character.Bio.Personality,
		&character.Bio.Appearance,
		&character.Bio.Notes,
		&character.AvatarURL,
		&character.ExternalRaw,
		&lastSynced,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return storage.Character{}, storage.ErrNotFound
		}
		return storage.Character{}, fmt.Errorf("scan character: %w", err)
	}

	character.Mechanics = extract.Character{}
	if err := json.Unmarshal([]byte(mechanics), &character.Mechanics); err != nil {
		return storage.Character{}, fmt.Errorf("unmarshal mechanics: %w", err)
	}
	if lastSynced.Valid {
		synced := fromMillis(lastSynced.Int64)
		character.LastSynced = &synced
	}
	character.CreatedAt = fromMillis(createdAt)
	character.UpdatedAt = fromMillis(updatedAt)
	return character, nil
}
