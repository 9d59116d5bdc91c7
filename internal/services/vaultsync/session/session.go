// Package session manages vault session tickets for linked accounts.
//
// The vault issues opaque tickets with no stated expiry, so validity is
// discovered by use: a cached ticket is probed with a cheap read, and any
// probe failure is treated as expiry, never as fatal. Re-authentication
// decrypts the stored credential and persists the fresh ticket before
// returning it, which keeps the refresh idempotent across requests.
package session

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/rowanvale/sheetsync/internal/platform/errors"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/secret"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/storage"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/vault"
)

// VaultClient is the part of the vault API the manager needs.
type VaultClient interface {
	Login(ctx context.Context, username string, password string) (vault.Session, error)
	Probe(ctx context.Context, ticket string) error
}

// Sealer opens sealed credentials.
type Sealer interface {
	Open(sealed string) (string, error)
}

// Manager obtains and refreshes session tickets for linked vault accounts.
type Manager struct {
	links  storage.AccountLinkStore
	vault  VaultClient
	sealer Sealer
	clock  func() time.Time
}

// NewManager creates a session manager.
func NewManager(links storage.AccountLinkStore, vaultClient VaultClient, sealer Sealer) *Manager {
	return &Manager{
		links:  links,
		vault:  vaultClient,
		sealer: sealer,
		clock:  time.Now,
	}
}

// EnsureTicket returns a valid session ticket for the user's linked account,
// re-authenticating when the cached ticket no longer works.
func (m *Manager) EnsureTicket(ctx context.Context, userID string) (string, error) {
	if m == nil || m.links == nil || m.vault == nil || m.sealer == nil {
		return "", errors.New(errors.CodeUnknown, "session manager is not configured")
	}

	link, err := m.links.GetAccountLink(ctx, userID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return "", errors.New(errors.CodeAccountNotLinked, "no vault account is connected for this user")
		}
		return "", errors.Wrap(errors.CodePersistenceFailure, "load account link", err)
	}

	if strings.TrimSpace(link.Ticket) != "" {
		if probeErr := m.vault.Probe(ctx, link.Ticket); probeErr == nil {
			return link.Ticket, nil
		}
		// Probe failure means the ticket expired; fall through to login.
	}

	password, err := m.sealer.Open(link.SealedCredential)
	if err != nil {
		if stderrors.Is(err, secret.ErrDecrypt) {
			// The server key changed since the credential was stored. The
			// user must reconnect the account; retrying cannot help.
			return "", errors.Wrap(errors.CodeCredentialReEntryRequired, "stored vault credential cannot be decrypted", err)
		}
		return "", errors.Wrap(errors.CodeCredentialReEntryRequired, "open stored vault credential", err)
	}

	vaultSession, err := m.vault.Login(ctx, link.Username, password)
	if err != nil {
		return "", err
	}

	now := time.Now()
	if m.clock != nil {
		now = m.clock()
	}
	if err := m.links.UpdateTicket(ctx, userID, vaultSession.Ticket, now); err != nil {
		return "", errors.Wrap(errors.CodePersistenceFailure, "persist refreshed ticket", err)
	}
	return vaultSession.Ticket, nil
}
