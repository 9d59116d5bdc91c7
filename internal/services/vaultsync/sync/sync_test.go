package sync

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rowanvale/sheetsync/internal/platform/errors"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/reconcile"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/storage"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/vault"
)

type fakeLinks struct {
	links map[string]storage.AccountLink
}

func newFakeLinks() *fakeLinks {
	return &fakeLinks{links: make(map[string]storage.AccountLink)}
}

func (f *fakeLinks) PutAccountLink(_ context.Context, link storage.AccountLink) error {
	f.links[link.UserID] = link
	return nil
}

func (f *fakeLinks) GetAccountLink(_ context.Context, userID string) (storage.AccountLink, error) {
	link, ok := f.links[userID]
	if !ok {
		return storage.AccountLink{}, storage.ErrNotFound
	}
	return link, nil
}

func (f *fakeLinks) UpdateTicket(_ context.Context, userID string, ticket string, now time.Time) error {
	link, ok := f.links[userID]
	if !ok {
		return storage.ErrNotFound
	}
	link.Ticket = ticket
	link.UpdatedAt = now
	f.links[userID] = link
	return nil
}

func (f *fakeLinks) ClearAccountLink(_ context.Context, userID string) error {
	delete(f.links, userID)
	return nil
}

type fakeCharacters struct {
	characters map[string]storage.Character
	putCount   int
}

func newFakeCharacters() *fakeCharacters {
	return &fakeCharacters{characters: make(map[string]storage.Character)}
}

func (f *fakeCharacters) PutCharacter(_ context.Context, character storage.Character) error {
	f.putCount++
	f.characters[character.ID] = character
	return nil
}

func (f *fakeCharacters) GetCharacter(_ context.Context, id string) (storage.Character, error) {
	character, ok := f.characters[id]
	if !ok {
		return storage.Character{}, storage.ErrNotFound
	}
	return character, nil
}

func (f *fakeCharacters) ListCharactersByOwner(_ context.Context, ownerUserID string) ([]storage.Character, error) {
	var out []storage.Character
	for _, character := range f.characters {
		if character.OwnerUserID == ownerUserID {
			out = append(out, character)
		}
	}
	return out, nil
}

func (f *fakeCharacters) GetCharacterByExternalID(_ context.Context, ownerUserID string, externalID string) (storage.Character, error) {
	for _, character := range f.characters {
		if character.OwnerUserID == ownerUserID && character.ExternalID == externalID && externalID != "" {
			return character, nil
		}
	}
	return storage.Character{}, storage.ErrNotFound
}

func (f *fakeCharacters) FindUnlinkedByName(_ context.Context, ownerUserID string, name string) (storage.Character, error) {
	for _, character := range f.characters {
		if character.OwnerUserID == ownerUserID && character.ExternalID == "" && strings.EqualFold(character.Name, name) {
			return character, nil
		}
	}
	return storage.Character{}, storage.ErrNotFound
}

func (f *fakeCharacters) UnlinkCharacter(_ context.Context, id string) error {
	character, ok := f.characters[id]
	if !ok {
		return storage.ErrNotFound
	}
	character.ExternalID = ""
	character.LastSynced = nil
	f.characters[id] = character
	return nil
}

type fakeVault struct {
	data     map[string]vault.Entry
	loginErr error
	updated  map[string]any
}

func newFakeVault() *fakeVault {
	return &fakeVault{data: make(map[string]vault.Entry)}
}

func (f *fakeVault) Login(_ context.Context, username string, _ string) (vault.Session, error) {
	if f.loginErr != nil {
		return vault.Session{}, f.loginErr
	}
	return vault.Session{AccountID: "acct-" + username, Ticket: "ticket-1"}, nil
}

func (f *fakeVault) GetUserData(_ context.Context, _ string) (map[string]vault.Entry, error) {
	out := make(map[string]vault.Entry, len(f.data))
	for key, entry := range f.data {
		out[key] = entry
	}
	return out, nil
}

func (f *fakeVault) UpdateUserData(_ context.Context, _ string, data map[string]any) error {
	if f.updated == nil {
		f.updated = make(map[string]any)
	}
	for key, value := range data {
		f.updated[key] = value
		payload, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected payload type %T for %s", value, key)
		}
		f.data[key] = vault.Entry{Value: payload, LastUpdated: time.Now().UnixMilli()}
	}
	return nil
}

func (f *fakeVault) Probe(_ context.Context, _ string) error { return nil }

// encJSON frames a plain JSON document the way the vault returns it.
func encJSON(doc string) string {
	return base64.StdEncoding.EncodeToString([]byte(doc))
}

type plainSealer struct{}

func (plainSealer) Seal(value string) (string, error) { return "sealed:" + value, nil }

func (plainSealer) Open(sealed string) (string, error) {
	return strings.TrimPrefix(sealed, "sealed:"), nil
}

func newTestService(t *testing.T) (*Service, *fakeLinks, *fakeCharacters, *fakeVault) {
	t.Helper()
	links := newFakeLinks()
	characters := newFakeCharacters()
	vaultClient := newFakeVault()
	svc := NewService(Config{
		Links:      links,
		Characters: characters,
		Vault:      vaultClient,
		Sealer:     plainSealer{},
	})
	if err := svc.ConnectAccount(context.Background(), "user-1", "rowan", "hunter2"); err != nil {
		t.Fatalf("ConnectAccount() error = %v", err)
	}
	return svc, links, characters, vaultClient
}

func TestConnectAccountStoresSealedLink(t *testing.T) {
	_, links, _, _ := newTestService(t)

	link, ok := links.links["user-1"]
	if !ok {
		t.Fatal("expected account link for user-1")
	}
	if link.SealedCredential != "sealed:hunter2" {
		t.Fatalf("SealedCredential = %q, want sealed value", link.SealedCredential)
	}
	if link.Ticket != "ticket-1" {
		t.Fatalf("Ticket = %q, want ticket-1", link.Ticket)
	}
}

func TestDisconnectAccountClearsLink(t *testing.T) {
	svc, links, _, _ := newTestService(t)

	if err := svc.DisconnectAccount(context.Background(), "user-1"); err != nil {
		t.Fatalf("DisconnectAccount() error = %v", err)
	}
	if _, ok := links.links["user-1"]; ok {
		t.Fatal("expected account link removed")
	}

	_, err := svc.ListCharacters(context.Background(), "user-1")
	if errors.CodeOf(err) != errors.CodeAccountNotLinked {
		t.Fatalf("CodeOf(err) = %v, want CodeAccountNotLinked", errors.CodeOf(err))
	}
}

func TestImportOneCreatesThenUpdates(t *testing.T) {
	svc, _, characters, vaultClient := newTestService(t)
	ctx := context.Background()

	vaultClient.data["character1"] = vault.Entry{Value: encJSON(`{"name":"Seraphine","level":3,"armorClass":17}`)}

	first, err := svc.ImportOne(ctx, "user-1", "character1", "")
	if err != nil {
		t.Fatalf("ImportOne() error = %v", err)
	}
	if first.Action != reconcile.ActionCreated {
		t.Fatalf("first Action = %q, want created", first.Action)
	}
	if first.Character.Name != "Seraphine" {
		t.Fatalf("Name = %q, want Seraphine", first.Character.Name)
	}
	if first.Character.Mechanics.Level != 3 {
		t.Fatalf("Level = %d, want 3", first.Character.Mechanics.Level)
	}

	vaultClient.data["character1"] = vault.Entry{Value: encJSON(`{"name":"Seraphine","level":4,"armorClass":18}`)}

	second, err := svc.ImportOne(ctx, "user-1", "character1", "")
	if err != nil {
		t.Fatalf("second ImportOne() error = %v", err)
	}
	if second.Action != reconcile.ActionUpdated {
		t.Fatalf("second Action = %q, want updated", second.Action)
	}
	if second.Character.ID != first.Character.ID {
		t.Fatalf("re-import ID = %q, want %q", second.Character.ID, first.Character.ID)
	}
	if second.Character.Mechanics.Level != 4 {
		t.Fatalf("updated Level = %d, want 4", second.Character.Mechanics.Level)
	}
	if len(characters.characters) != 1 {
		t.Fatalf("stored characters = %d, want 1", len(characters.characters))
	}
}

func TestImportOneMissingRecord(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.ImportOne(context.Background(), "user-1", "character9", "")
	if errors.CodeOf(err) != errors.CodeRecordNotFound {
		t.Fatalf("CodeOf(err) = %v, want CodeRecordNotFound", errors.CodeOf(err))
	}
}

func TestImportOneNameConflictThenMerge(t *testing.T) {
	svc, _, characters, vaultClient := newTestService(t)
	ctx := context.Background()

	local := storage.Character{
		ID:          "local-1",
		OwnerUserID: "user-1",
		Name:        "seraphine",
		Bio:         storage.Bio{Biography: "Handwritten backstory."},
	}
	characters.characters[local.ID] = local
	vaultClient.data["character1"] = vault.Entry{Value: encJSON(`{"name":"Seraphine","level":5}`)}

	_, err := svc.ImportOne(ctx, "user-1", "character1", "")
	if errors.CodeOf(err) != errors.CodeNameConflict {
		t.Fatalf("CodeOf(err) = %v, want CodeNameConflict", errors.CodeOf(err))
	}
	var typed *errors.Error
	if !stderrors.As(err, &typed) {
		t.Fatalf("error %v is not a typed error", err)
	}
	if typed.Metadata["existing_id"] != "local-1" {
		t.Fatalf("existing_id = %q, want local-1", typed.Metadata["existing_id"])
	}
	if stored := characters.characters["local-1"]; stored.ExternalID != "" {
		t.Fatal("conflict must not write to the store")
	}

	merged, err := svc.ImportOne(ctx, "user-1", "character1", "local-1")
	if err != nil {
		t.Fatalf("merge ImportOne() error = %v", err)
	}
	if merged.Action != reconcile.ActionMerged {
		t.Fatalf("Action = %q, want merged", merged.Action)
	}
	if merged.Character.ID != "local-1" {
		t.Fatalf("merged ID = %q, want local-1", merged.Character.ID)
	}
	if merged.Character.ExternalID != "character1" {
		t.Fatalf("merged ExternalID = %q, want character1", merged.Character.ExternalID)
	}
	if merged.Character.Bio.Biography != "Handwritten backstory." {
		t.Fatalf("merge overwrote local biography: %q", merged.Character.Bio.Biography)
	}
}

func TestImportAllIsolatesFailures(t *testing.T) {
	svc, _, characters, vaultClient := newTestService(t)

	for i := 1; i <= 4; i++ {
		vaultClient.data[fmt.Sprintf("character%d", i)] = vault.Entry{
			Value: encJSON(fmt.Sprintf(`{"name":"Hero %d","level":%d}`, i, i)),
		}
	}
	vaultClient.data["character5"] = vault.Entry{Value: "\x01\x02 not a payload"}
	vaultClient.data["campaignNotes"] = vault.Entry{Value: encJSON(`{"name":"GM notes"}`)}

	outcomes, err := svc.ImportAll(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ImportAll() error = %v", err)
	}
	if len(outcomes) != 5 {
		t.Fatalf("len(outcomes) = %d, want 5", len(outcomes))
	}

	var failures int
	for _, outcome := range outcomes {
		if outcome.Err != "" {
			failures++
			if outcome.ExternalID != "character5" {
				t.Fatalf("unexpected failure on %s: %s", outcome.ExternalID, outcome.Err)
			}
			continue
		}
		if outcome.Action != reconcile.ActionCreated {
			t.Fatalf("%s Action = %q, want created", outcome.ExternalID, outcome.Action)
		}
	}
	if failures != 1 {
		t.Fatalf("failures = %d, want 1", failures)
	}
	if len(characters.characters) != 4 {
		t.Fatalf("stored characters = %d, want 4", len(characters.characters))
	}
}

func TestImportAllCapsBatchSize(t *testing.T) {
	svc, _, _, vaultClient := newTestService(t)

	for i := 1; i <= importAllCap+10; i++ {
		vaultClient.data[fmt.Sprintf("character%d", i)] = vault.Entry{
			Value: encJSON(fmt.Sprintf(`{"name":"Hero %d"}`, i)),
		}
	}

	outcomes, err := svc.ImportAll(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ImportAll() error = %v", err)
	}
	if len(outcomes) != importAllCap {
		t.Fatalf("len(outcomes) = %d, want %d", len(outcomes), importAllCap)
	}
	// Slots are taken in numeric order, so the overflow slots are skipped.
	if outcomes[0].ExternalID != "character1" {
		t.Fatalf("first outcome = %s, want character1", outcomes[0].ExternalID)
	}
	if last := outcomes[len(outcomes)-1].ExternalID; last != fmt.Sprintf("character%d", importAllCap) {
		t.Fatalf("last outcome = %s, want character%d", last, importAllCap)
	}
}

func TestRefreshSyncPreservesNarrativeFields(t *testing.T) {
	svc, _, characters, vaultClient := newTestService(t)
	ctx := context.Background()

	vaultClient.data["character1"] = vault.Entry{
		Value: encJSON(`{"name":"Seraphine","level":3,"biography":"vault bio","avatarUrl":"https://vault/s.png"}`),
	}
	imported, err := svc.ImportOne(ctx, "user-1", "character1", "")
	if err != nil {
		t.Fatalf("ImportOne() error = %v", err)
	}

	// The player edits the narrative fields and renames the character.
	edited := imported.Character
	edited.Name = "Lady Seraphine"
	edited.Bio.Biography = "Local, hand-edited biography."
	edited.AvatarURL = "https://local/avatar.png"
	characters.characters[edited.ID] = edited

	vaultClient.data["character1"] = vault.Entry{
		Value: encJSON(`{"name":"Seraphine","level":4,"biography":"newer vault bio","avatarUrl":"https://vault/s2.png"}`),
	}

	refreshed, err := svc.RefreshSync(ctx, "user-1", edited.ID)
	if err != nil {
		t.Fatalf("RefreshSync() error = %v", err)
	}
	if refreshed.Action != reconcile.ActionUpdated {
		t.Fatalf("Action = %q, want updated", refreshed.Action)
	}
	if refreshed.Character.Mechanics.Level != 4 {
		t.Fatalf("Level = %d, want 4", refreshed.Character.Mechanics.Level)
	}
	if refreshed.Character.Name != "Lady Seraphine" {
		t.Fatalf("refresh overwrote name: %q", refreshed.Character.Name)
	}
	if refreshed.Character.Bio.Biography != "Local, hand-edited biography." {
		t.Fatalf("refresh overwrote biography: %q", refreshed.Character.Bio.Biography)
	}
	if refreshed.Character.AvatarURL != "https://local/avatar.png" {
		t.Fatalf("refresh overwrote avatar: %q", refreshed.Character.AvatarURL)
	}
}

func TestRefreshSyncRequiresLink(t *testing.T) {
	svc, _, characters, _ := newTestService(t)

	characters.characters["local-1"] = storage.Character{ID: "local-1", OwnerUserID: "user-1", Name: "Orin"}

	_, err := svc.RefreshSync(context.Background(), "user-1", "local-1")
	if errors.CodeOf(err) != errors.CodeRecordNotFound {
		t.Fatalf("CodeOf(err) = %v, want CodeRecordNotFound", errors.CodeOf(err))
	}
}

func TestRefreshSyncForeignCharacterReadsAsNotFound(t *testing.T) {
	svc, _, characters, _ := newTestService(t)

	characters.characters["other-1"] = storage.Character{
		ID: "other-1", OwnerUserID: "user-2", Name: "Orin", ExternalID: "character1",
	}

	_, err := svc.RefreshSync(context.Background(), "user-1", "other-1")
	if errors.CodeOf(err) != errors.CodeNotFound {
		t.Fatalf("CodeOf(err) = %v, want CodeNotFound", errors.CodeOf(err))
	}
}

func TestListCharactersSplitsAndSorts(t *testing.T) {
	svc, _, _, vaultClient := newTestService(t)

	vaultClient.data["character10"] = vault.Entry{Value: encJSON(`{"name":"Tenth"}`), LastUpdated: 10}
	vaultClient.data["character2"] = vault.Entry{Value: encJSON(`{"name":"Second"}`), LastUpdated: 2}
	vaultClient.data["character3"] = vault.Entry{Value: "\x01 undecodable"}
	vaultClient.data["campaignNotes"] = vault.Entry{Value: encJSON(`{"customCampaign":{"name":"Rise of the Runelords"}}`)}

	listing, err := svc.ListCharacters(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListCharacters() error = %v", err)
	}

	if got := len(listing.Players); got != 3 {
		t.Fatalf("len(Players) = %d, want 3", got)
	}
	order := []string{"character2", "character3", "character10"}
	for i, want := range order {
		if listing.Players[i].Key != want {
			t.Fatalf("Players[%d].Key = %q, want %q", i, listing.Players[i].Key, want)
		}
	}
	if listing.Players[0].Name != "Second" {
		t.Fatalf("Players[0].Name = %q, want Second", listing.Players[0].Name)
	}
	// Undecodable records still appear, named after their key.
	if listing.Players[1].Name != "character3" {
		t.Fatalf("Players[1].Name = %q, want character3", listing.Players[1].Name)
	}

	if got := len(listing.Campaigns); got != 1 {
		t.Fatalf("len(Campaigns) = %d, want 1", got)
	}
	if listing.Campaigns[0].Name != "Rise of the Runelords" {
		t.Fatalf("Campaigns[0].Name = %q", listing.Campaigns[0].Name)
	}
}

func TestLinkExistingAttachesRecord(t *testing.T) {
	svc, _, characters, vaultClient := newTestService(t)

	characters.characters["local-1"] = storage.Character{
		ID: "local-1", OwnerUserID: "user-1", Name: "My Hero",
		Bio: storage.Bio{Notes: "table notes"},
	}
	vaultClient.data["character1"] = vault.Entry{Value: encJSON(`{"name":"Seraphine","level":2}`)}

	outcome, err := svc.LinkExisting(context.Background(), "user-1", "local-1", "character1")
	if err != nil {
		t.Fatalf("LinkExisting() error = %v", err)
	}
	if outcome.Action != reconcile.ActionMerged {
		t.Fatalf("Action = %q, want merged", outcome.Action)
	}
	if outcome.Character.ExternalID != "character1" {
		t.Fatalf("ExternalID = %q, want character1", outcome.Character.ExternalID)
	}
	if outcome.Character.Name != "My Hero" {
		t.Fatalf("link overwrote local name: %q", outcome.Character.Name)
	}
	if outcome.Character.Bio.Notes != "table notes" {
		t.Fatalf("link overwrote local notes: %q", outcome.Character.Bio.Notes)
	}
}

func TestLinkExistingRejectsAlreadyLinkedRecord(t *testing.T) {
	svc, _, characters, vaultClient := newTestService(t)

	characters.characters["local-1"] = storage.Character{ID: "local-1", OwnerUserID: "user-1", Name: "One"}
	characters.characters["local-2"] = storage.Character{
		ID: "local-2", OwnerUserID: "user-1", Name: "Two", ExternalID: "character1",
	}
	vaultClient.data["character1"] = vault.Entry{Value: encJSON(`{"name":"Seraphine"}`)}

	_, err := svc.LinkExisting(context.Background(), "user-1", "local-1", "character1")
	if errors.CodeOf(err) != errors.CodeNameConflict {
		t.Fatalf("CodeOf(err) = %v, want CodeNameConflict", errors.CodeOf(err))
	}
}

func TestExportExportImportRoundTrip(t *testing.T) {
	svc, _, characters, vaultClient := newTestService(t)
	ctx := context.Background()

	// Import a rich record so the mechanics carry every facet group.
	vaultClient.data["character1"] = vault.Entry{Value: encJSON(`{
		"name": "Seraphine",
		"level": 7,
		"abilities": {"strength": 14, "dexterity": 18, "constitution": 12, "intelligence": 10, "wisdom": 13, "charisma": 16},
		"armorClass": 19, "touchAC": 14, "flatFootedAC": 16,
		"hitPoints": {"current": 41, "max": 52},
		"initiative": 4, "speed": 30, "baseAttackBonus": 5,
		"saves": {"fortitude": 5, "reflex": 9, "will": 4},
		"skills": {"Acrobatics": {"ranks": 7, "total": 14, "classSkill": true}, "Stealth": {"ranks": 7, "total": 15, "classSkill": true}},
		"feats": ["Weapon Finesse", "Dodge"],
		"specialAbilities": ["Evasion"],
		"traits": ["Reactionary"],
		"weapons": [{"name": "Rapier", "attackBonus": 10, "damage": "1d6+1", "critical": "18-20/x2", "type": "P"}],
		"armor": [{"name": "Mithral Chain Shirt", "acBonus": 4, "type": "light", "checkPenalty": 0}],
		"spells": {"1": ["Shield", "Vanish"], "2": ["Invisibility"]},
		"race": "Half-Elf", "class": "Magus", "alignment": "CG", "deity": "Desna", "size": "Medium", "gender": "F",
		"casterClass": "Magus", "casterLevel": 7, "concentration": 11, "spellPenetration": 0,
		"biography": "Raised on the coast.",
		"avatarUrl": "https://vault/seraphine.png"
	}`)}
	imported, err := svc.ImportOne(ctx, "user-1", "character1", "")
	if err != nil {
		t.Fatalf("ImportOne() error = %v", err)
	}

	// Copy the character to a fresh unlinked record and export it.
	clone := imported.Character
	clone.ID = "clone-1"
	clone.ExternalID = ""
	clone.LastSynced = nil
	characters.characters[clone.ID] = clone

	exported, err := svc.ExportOne(ctx, "user-1", "clone-1")
	if err != nil {
		t.Fatalf("ExportOne() error = %v", err)
	}
	if exported.Character.ExternalID != "character2" {
		t.Fatalf("exported slot = %q, want character2", exported.Character.ExternalID)
	}
	if exported.Character.LastSynced == nil {
		t.Fatal("export must set LastSynced")
	}
	if _, ok := vaultClient.updated["character2"]; !ok {
		t.Fatal("export did not write the vault slot")
	}

	// Re-importing the exported slot must reproduce the same mechanics.
	reimported, err := svc.ImportOne(ctx, "user-1", "character2", "")
	if err != nil {
		t.Fatalf("re-import error = %v", err)
	}
	if !reflect.DeepEqual(reimported.Character.Mechanics, imported.Character.Mechanics) {
		t.Fatalf("round-trip mechanics mismatch:\n got %+v\nwant %+v",
			reimported.Character.Mechanics, imported.Character.Mechanics)
	}
	if reimported.Character.Name != imported.Character.Name {
		t.Fatalf("round-trip Name = %q, want %q", reimported.Character.Name, imported.Character.Name)
	}
	if reimported.Character.Bio != imported.Character.Bio {
		t.Fatalf("round-trip Bio = %+v, want %+v", reimported.Character.Bio, imported.Character.Bio)
	}
	if reimported.Character.AvatarURL != imported.Character.AvatarURL {
		t.Fatalf("round-trip AvatarURL = %q", reimported.Character.AvatarURL)
	}
}

func TestExportSkipsOccupiedSlots(t *testing.T) {
	svc, _, characters, vaultClient := newTestService(t)

	vaultClient.data["character1"] = vault.Entry{Value: encJSON(`{"name":"A"}`)}
	vaultClient.data["character2"] = vault.Entry{Value: encJSON(`{"name":"B"}`)}
	vaultClient.data["character4"] = vault.Entry{Value: encJSON(`{"name":"D"}`)}
	characters.characters["local-1"] = storage.Character{ID: "local-1", OwnerUserID: "user-1", Name: "New Hero"}

	outcome, err := svc.ExportOne(context.Background(), "user-1", "local-1")
	if err != nil {
		t.Fatalf("ExportOne() error = %v", err)
	}
	if outcome.Character.ExternalID != "character3" {
		t.Fatalf("slot = %q, want character3", outcome.Character.ExternalID)
	}
	if len(vaultClient.updated) != 1 {
		t.Fatalf("updated %d slots, want 1", len(vaultClient.updated))
	}
}

func TestLocalCharactersSortsByName(t *testing.T) {
	svc, _, characters, _ := newTestService(t)

	characters.characters["b"] = storage.Character{ID: "b", OwnerUserID: "user-1", Name: "Zariel"}
	characters.characters["a"] = storage.Character{ID: "a", OwnerUserID: "user-1", Name: "Astrid"}
	characters.characters["x"] = storage.Character{ID: "x", OwnerUserID: "user-2", Name: "Foreign"}

	list, err := svc.LocalCharacters(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("LocalCharacters() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].Name != "Astrid" || list[1].Name != "Zariel" {
		t.Fatalf("order = %q, %q", list[0].Name, list[1].Name)
	}
}

func TestUnlinkDetachesButKeepsRecord(t *testing.T) {
	svc, _, characters, _ := newTestService(t)

	synced := time.Now()
	characters.characters["local-1"] = storage.Character{
		ID: "local-1", OwnerUserID: "user-1", Name: "Seraphine",
		ExternalID: "character1", LastSynced: &synced,
	}

	character, err := svc.Unlink(context.Background(), "user-1", "local-1")
	if err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}
	if character.ExternalID != "" {
		t.Fatalf("ExternalID = %q, want empty", character.ExternalID)
	}
	if character.LastSynced != nil {
		t.Fatal("LastSynced should be cleared")
	}
	if character.Name != "Seraphine" {
		t.Fatalf("Name = %q, want Seraphine", character.Name)
	}
}

func TestExportFailsWhenSlotsFull(t *testing.T) {
	svc, _, characters, vaultClient := newTestService(t)

	for i := 1; i <= maxExportSlot; i++ {
		vaultClient.data[fmt.Sprintf("character%d", i)] = vault.Entry{Value: encJSON(`{"name":"x"}`)}
	}
	characters.characters["local-1"] = storage.Character{ID: "local-1", OwnerUserID: "user-1", Name: "New Hero"}

	_, err := svc.ExportOne(context.Background(), "user-1", "local-1")
	if errors.CodeOf(err) != errors.CodeExportSlotsFull {
		t.Fatalf("CodeOf(err) = %v, want CodeExportSlotsFull", errors.CodeOf(err))
	}
	if len(vaultClient.updated) != 0 {
		t.Fatal("full vault must not be written")
	}
}
