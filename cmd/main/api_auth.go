package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
)

const authSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id            INTEGER   PRIMARY KEY,
    key_hash      TEXT      NOT NULL UNIQUE,
    scopes        TEXT      NOT NULL,
    description   TEXT      NOT NULL,
    created_at    DATETIME  NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// authHeader carries the raw API key on every authenticated request.
const authHeader = "bot-auth"

// keyPrefix marks bot API keys so they are recognizable in configs and logs.
const keyPrefix = "pzb_"

// masterKeyID is the first key ever created. It always holds scopeAll and cannot
// be deleted, so the API can never lock its operator out.
const masterKeyID = 1

// Scopes guarding the bot API. Reading replies and the model needs bot:read,
// feeding messages or rebuilding needs bot:write. "*" grants everything.
const (
	scopeBotRead       = "bot:read"
	scopeBotWrite      = "bot:write"
	scopeStatsRead     = "stats:read"
	scopeAuthManage    = "auth:manage"
	scopeServerConfig  = "server:config"
	scopeServerControl = "server:control"
	scopeAll           = "*"
)

var knownScopes = []string{
	scopeBotRead, scopeBotWrite, scopeStatsRead, scopeAuthManage,
	scopeServerConfig, scopeServerControl, scopeAll,
}

// scopeSet is the parsed form of the space separated scopes column.
type scopeSet map[string]struct{}

func parseScopes(s string) scopeSet {
	set := make(scopeSet)
	for _, scope := range strings.Fields(s) {
		set[scope] = struct{}{}
	}
	return set
}

func (s scopeSet) allows(scope string) bool {
	if _, ok := s[scopeAll]; ok {
		return true
	}
	_, ok := s[scope]
	return ok
}

func (s scopeSet) sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// validateScopes returns the first scope the API does not know about.
func validateScopes(scopes []string) (string, bool) {
	for _, s := range scopes {
		if !slices.Contains(knownScopes, s) {
			return s, false
		}
	}
	return "", true
}

type contextKey string

const contextKeyPermissions = contextKey("permissions")

// Permissions is what Authenticate attached to a request: the key that made it and
// the scopes that key holds. KeyID is 0 while the API is open.
type Permissions struct {
	KeyID  int
	Scopes scopeSet
}

func permissionsFrom(ctx context.Context) (*Permissions, bool) {
	perms, ok := ctx.Value(contextKeyPermissions).(*Permissions)
	return perms, ok
}

// APIKeyInfo describes a stored key. The raw key is never part of it.
type APIKeyInfo struct {
	ID          int      `json:"id"`
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
	CreatedAt   string   `json:"created_at"`
}

// CreateKeyRequest asks for a new key with the given scopes.
type CreateKeyRequest struct {
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyResponse carries the raw key. It is shown once and only its hash is kept.
type CreateKeyResponse struct {
	ID     int      `json:"id"`
	RawKey string   `json:"raw_key"`
	Scopes []string `json:"scopes"`
}

var errKeyNotFound = errors.New("api key not found")

// keyStore keeps hashed API keys in the api_keys table.
type keyStore struct {
	db *sql.DB
}

func setupAuthSchema(db *sql.DB) error {
	if _, err := db.Exec(authSchema); err != nil {
		return fmt.Errorf("could not create api_keys table: %w", err)
	}
	return nil
}

func (s keyStore) count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&n)
	return n, err
}

// lookup resolves a raw key to its id and scopes, or errKeyNotFound.
func (s keyStore) lookup(ctx context.Context, rawKey string) (int, scopeSet, error) {
	var id int
	var scopes string
	err := s.db.QueryRowContext(ctx, "SELECT id, scopes FROM api_keys WHERE key_hash = ?", hashAPIKey(rawKey)).Scan(&id, &scopes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, errKeyNotFound
	}
	if err != nil {
		return 0, nil, err
	}
	return id, parseScopes(scopes), nil
}

func (s keyStore) list(ctx context.Context) ([]APIKeyInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, description, scopes, created_at FROM api_keys ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	keys := make([]APIKeyInfo, 0)
	for rows.Next() {
		var key APIKeyInfo
		var scopes string
		if err = rows.Scan(&key.ID, &key.Description, &scopes, &key.CreatedAt); err != nil {
			return nil, err
		}
		key.Scopes = strings.Fields(scopes)
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// create stores a new key. The first key of an empty table is always granted
// scopeAll, whatever was requested.
func (s keyStore) create(ctx context.Context, description string, scopes []string) (CreateKeyResponse, error) {
	rawKey, err := generateAPIKey()
	if err != nil {
		return CreateKeyResponse{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CreateKeyResponse{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var existing int
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&existing); err != nil {
		return CreateKeyResponse{}, fmt.Errorf("could not count keys: %w", err)
	}
	if existing == 0 {
		scopes = []string{scopeAll}
	}

	resp := CreateKeyResponse{RawKey: rawKey, Scopes: scopes}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO api_keys (key_hash, description, scopes) VALUES (?, ?, ?) RETURNING id`,
		hashAPIKey(rawKey), description, strings.Join(scopes, " ")).Scan(&resp.ID)
	if err != nil {
		return CreateKeyResponse{}, fmt.Errorf("could not insert key: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return CreateKeyResponse{}, fmt.Errorf("could not commit transaction: %w", err)
	}
	return resp, nil
}

func (s keyStore) remove(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errKeyNotFound
	}
	return nil
}

// AuthAPI guards the API with hashed keys and serves the /api/auth endpoints.
type AuthAPI struct {
	keys   keyStore
	logger *slog.Logger
}

func NewAuthAPI(db *sql.DB, logger *slog.Logger) *AuthAPI {
	return &AuthAPI{
		keys:   keyStore{db: db},
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/auth endpoints.
func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/me", a.handleCheckMe)
	mux.HandleFunc("/api/auth/keys", a.handleKeys)
	mux.HandleFunc("/api/auth/keys/", a.handleKeyByID)
}

// Authenticate resolves the key in authHeader and attaches its Permissions to the
// request. Until the first key is created every request is let through with
// scopeAll, which is how an operator bootstraps the master key.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		perms, status, msg := a.resolve(r)
		if perms == nil {
			respondWithError(w, status, msg)
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyPermissions, perms)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AuthAPI) resolve(r *http.Request) (*Permissions, int, string) {
	n, err := a.keys.count(r.Context())
	if err != nil {
		a.logger.Error("Failed to count API keys", "error", err)
		return nil, http.StatusInternalServerError, "Internal Server Error"
	}
	if n == 0 {
		return &Permissions{Scopes: scopeSet{scopeAll: {}}}, 0, ""
	}

	rawKey := r.Header.Get(authHeader)
	if rawKey == "" {
		return nil, http.StatusUnauthorized, "Missing '" + authHeader + "' header"
	}
	id, scopes, err := a.keys.lookup(r.Context(), rawKey)
	switch {
	case errors.Is(err, errKeyNotFound):
		return nil, http.StatusUnauthorized, "Invalid API key"
	case err != nil:
		a.logger.Error("Failed to look up API key", "error", err)
		return nil, http.StatusInternalServerError, "Internal Server Error"
	}
	return &Permissions{KeyID: id, Scopes: scopes}, 0, ""
}

func (a *AuthAPI) handleKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listKeys(w, r)
	case http.MethodPost:
		a.createKey(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *AuthAPI) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth/keys/"), "/"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid key ID format in URL")
		return
	}
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", "DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed for this key resource")
		return
	}
	a.deleteKey(w, r, id)
}

func (a *AuthAPI) handleCheckMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	perms, ok := permissionsFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid or missing token")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"key_id": perms.KeyID,
		"scopes": perms.Scopes.sorted(),
	})
}

func (a *AuthAPI) listKeys(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeAuthManage) {
		return
	}
	keys, err := a.keys.list(r.Context())
	if err != nil {
		a.logger.Error("Failed to list API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	respondWithJSON(w, http.StatusOK, keys)
}

func (a *AuthAPI) createKey(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeAuthManage) {
		return
	}

	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if unknown, ok := validateScopes(req.Scopes); !ok {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scope '%s'", unknown))
		return
	}

	resp, err := a.keys.create(r.Context(), req.Description, req.Scopes)
	if err != nil {
		a.logger.Error("Failed to create API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to save new key")
		return
	}
	a.logger.Info("API key created", "id", resp.ID, "scopes", resp.Scopes)
	respondWithJSON(w, http.StatusCreated, resp)
}

func (a *AuthAPI) deleteKey(w http.ResponseWriter, r *http.Request, id int) {
	if !requireScope(w, r, scopeAuthManage) {
		return
	}
	if id == masterKeyID {
		respondWithError(w, http.StatusBadRequest, "The master key cannot be deleted")
		return
	}

	switch err := a.keys.remove(r.Context(), id); {
	case errors.Is(err, errKeyNotFound):
		respondWithError(w, http.StatusNotFound, "Key not found")
	case err != nil:
		a.logger.Error("Failed to delete API key", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete key")
	default:
		a.logger.Info("API key deleted", "id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// requireScope writes a 403 and returns false when the request lacks scope.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	if perms, ok := permissionsFrom(r.Context()); ok && perms.Scopes.allows(scope) {
		return true
	}
	respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
	return false
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}

func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error("Failed to encode JSON response", "error", err)
		}
	}
}
