// Package rest exposes the vault sync service as a JSON HTTP API.
package rest

import (
	"encoding/json"
	stderrors "errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/rowanvale/sheetsync/internal/platform/errors"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/reconcile"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/storage"
	"github.com/rowanvale/sheetsync/internal/services/vaultsync/sync"
)

// userHeader carries the authenticated user id set by the fronting proxy.
const userHeader = "X-User-ID"

// maxBodyBytes bounds request bodies; sync requests are small JSON envelopes.
const maxBodyBytes = 64 << 10

// Handler routes sync operations over HTTP.
type Handler struct {
	svc *sync.Service
}

// NewHandler builds a handler around the sync service.
func NewHandler(svc *sync.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers JSON endpoints on the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("POST /v1/account/connect", h.handleConnect)
	mux.HandleFunc("POST /v1/account/disconnect", h.handleDisconnect)
	mux.HandleFunc("GET /v1/vault/characters", h.handleListVault)
	mux.HandleFunc("POST /v1/vault/import", h.handleImport)
	mux.HandleFunc("POST /v1/vault/import-all", h.handleImportAll)
	mux.HandleFunc("GET /v1/characters", h.handleListLocal)
	mux.HandleFunc("GET /v1/characters/{id}", h.handleGetLocal)
	mux.HandleFunc("POST /v1/characters/{id}/sync", h.handleRefresh)
	mux.HandleFunc("POST /v1/characters/{id}/export", h.handleExport)
	mux.HandleFunc("POST /v1/characters/{id}/link", h.handleLink)
	mux.HandleFunc("POST /v1/characters/{id}/unlink", h.handleUnlink)
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

type connectRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type importRequest struct {
	ExternalID    string `json:"externalId"`
	MergeTargetID string `json:"mergeTargetId,omitempty"`
}

type linkRequest struct {
	ExternalID string `json:"externalId"`
}

type outcomeResponse struct {
	Action    reconcile.Action  `json:"action"`
	Character characterResponse `json:"character"`
}

type itemOutcomeResponse struct {
	ExternalID string           `json:"externalId"`
	Name       string           `json:"name,omitempty"`
	Action     reconcile.Action `json:"action,omitempty"`
	Error      string           `json:"error,omitempty"`
}

type externalCharacterResponse struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	LastUpdated int64  `json:"lastUpdated,omitempty"`
}

type listingResponse struct {
	Players   []externalCharacterResponse `json:"players"`
	Campaigns []externalCharacterResponse `json:"campaigns"`
}

type characterResponse struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	ExternalID string      `json:"externalId,omitempty"`
	Mechanics  any         `json:"mechanics"`
	Bio        bioResponse `json:"bio"`
	AvatarURL  string      `json:"avatarUrl,omitempty"`
	LastSynced *time.Time  `json:"lastSynced,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

type bioResponse struct {
	Biography   string `json:"biography,omitempty"`
	Personality string `json:"personality,omitempty"`
	Appearance  string `json:"appearance,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userOf(w, r)
	if !ok {
		return
	}
	var req connectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.ConnectAccount(r.Context(), userID, req.Username, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userOf(w, r)
	if !ok {
		return
	}
	if err := h.svc.DisconnectAccount(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) handleListVault(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userOf(w, r)
	if !ok {
		return
	}
	listing, err := h.svc.ListCharacters(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := listingResponse{
		Players:   toExternalList(listing.Players),
		Campaigns: toExternalList(listing.Campaigns),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userOf(w, r)
	if !ok {
		return
	}
	var req importRequest
	if !decodeBody(w, r, &req) {
		return
	}
	outcome, err := h.svc.ImportOne(r.Context(), userID, req.ExternalID, req.MergeTargetID)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if outcome.Action == reconcile.ActionCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, toOutcome(outcome))
}

func (h *Handler) handleImportAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userOf(w, r)
	if !ok {
		return
	}
	outcomes, err := h.svc.ImportAll(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]itemOutcomeResponse, 0, len(outcomes))
	for _, outcome := range outcomes {
		items = append(items, itemOutcomeResponse{
			ExternalID: outcome.ExternalID,
			Name:       outcome.Name,
			Action:     outcome.Action,
			Error:      outcome.Err,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

func (h *Handler) handleListLocal(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userOf(w, r)
	if !ok {
		return
	}
	characters, err := h.svc.LocalCharacters(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]characterResponse, 0, len(characters))
	for _, character := range characters {
		out = append(out, toCharacter(character))
	}
	writeJSON(w, http.StatusOK, map[string]any{"characters": out})
}

func (h *Handler) handleGetLocal(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userOf(w, r)
	if !ok {
		return
	}
	character, err := h.svc.GetLocalCharacter(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCharacter(character))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userOf(w, r)
	if !ok {
		return
	}
	outcome, err := h.svc.RefreshSync(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcome(outcome))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userOf(w, r)
	if !ok {
		return
	}
	outcome, err := h.svc.ExportOne(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcome(outcome))
}

func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userOf(w, r)
	if !ok {
		return
	}
	var req linkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	outcome, err := h.svc.LinkExisting(r.Context(), userID, r.PathValue("id"), req.ExternalID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcome(outcome))
}

func (h *Handler) handleUnlink(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userOf(w, r)
	if !ok {
		return
	}
	character, err := h.svc.Unlink(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCharacter(character))
}

// userOf reads the authenticated user header, rejecting anonymous requests.
func (h *Handler) userOf(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(userHeader))
	if userID == "" {
		writeError(w, errors.New(errors.CodeAuthenticationFailed, "missing "+userHeader+" header"))
		return "", false
	}
	return userID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		writeError(w, errors.Wrap(errors.CodeMalformedEncoding, "decode request body", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	if body == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	body := errorBody{Code: string(code), Message: err.Error()}
	var domainErr *errors.Error
	if stderrors.As(err, &domainErr) && len(domainErr.Metadata) > 0 {
		body.Metadata = domainErr.Metadata
	}
	writeJSON(w, code.HTTPStatus(), errorResponse{Error: body})
}

func toOutcome(outcome sync.Outcome) outcomeResponse {
	return outcomeResponse{Action: outcome.Action, Character: toCharacter(outcome.Character)}
}

func toCharacter(character storage.Character) characterResponse {
	return characterResponse{
		ID:         character.ID,
		Name:       character.Name,
		ExternalID: character.ExternalID,
		Mechanics:  character.Mechanics,
		Bio: bioResponse{
			Biography:   character.Bio.Biography,
			Personality: character.Bio.Personality,
			Appearance:  character.Bio.Appearance,
			Notes:       character.Bio.Notes,
		},
		AvatarURL:  character.AvatarURL,
		LastSynced: character.LastSynced,
		CreatedAt:  character.CreatedAt,
		UpdatedAt:  character.UpdatedAt,
	}
}

func toExternalList(externals []sync.ExternalCharacter) []externalCharacterResponse {
	out := make([]externalCharacterResponse, 0, len(externals))
	for _, external := range externals {
		out = append(out, externalCharacterResponse{
			Key:         external.Key,
			Name:        external.Name,
			LastUpdated: external.LastUpdated,
		})
	}
	return out
}
