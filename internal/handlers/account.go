package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jjudge-oj/accountserver/internal/apperr"
	"github.com/jjudge-oj/accountserver/internal/services"
	"github.com/jjudge-oj/accountserver/types"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// AccountHandler provides HTTP handlers for account operations.
type AccountHandler struct {
	accounts *services.AccountService
	logger   *zap.Logger
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(accounts *services.AccountService, logger *zap.Logger) *AccountHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountHandler{accounts: accounts, logger: logger}
}

// AccountRouter registers account routes on the given router. Register and
// login are public and go through throttle when it is set; everything else
// goes through authMiddleware.
func AccountRouter(
	r chi.Router,
	accounts *services.AccountService,
	authMiddleware func(http.Handler) http.Handler,
	throttle func(http.Handler) http.Handler,
	logger *zap.Logger,
) {
	handler := NewAccountHandler(accounts, logger)

	r.Group(func(r chi.Router) {
		if throttle != nil {
			r.Use(throttle)
		}
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", handler.ListAll)
		r.Get("/me", handler.ListSelf)
		r.Patch("/{userID}", handler.Update)
		r.Delete("/{userID}", handler.Delete)
	})
}

type RegisterRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateRequest holds the fields to change; absent or empty fields are kept.
type UpdateRequest struct {
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	PhoneNumber *string `json:"phone_number"`
	Address     *string `json:"address"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type LoginResponse struct {
	Success bool          `json:"success"`
	User    types.Profile `json:"user"`
	Token   string        `json:"token"`
}

type UpdateResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ListResponse struct {
	Length int             `json:"length"`
	Users  []types.Profile `json:"users"`
}

// Register creates a new account and returns a token for it.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, h.logger, apperr.New(apperr.KindInvalidInput, "name, email and password are required"))
		return
	}

	token, err := h.accounts.Register(r.Context(), services.RegisterInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Address:     strings.TrimSpace(req.Address),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, TokenResponse{Token: token})
}

// Login verifies credentials and returns the profile with a token.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, h.logger, apperr.New(apperr.KindInvalidInput, "email and password are required"))
		return
	}

	result, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Success: true, User: result.User, Token: result.Token})
}

// ListAll returns every account's public profile.
func (h *AccountHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	profiles, err := h.accounts.ListAll(r.Context(), caller)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{Length: len(profiles), Users: profiles})
}

// ListSelf returns the caller's own profile.
func (h *AccountHandler) ListSelf(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	profiles, err := h.accounts.ListSelf(r.Context(), caller)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, profiles)
}

// Update changes the caller's own account and returns a fresh token.
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	token, err := h.accounts.Update(r.Context(), caller, chi.URLParam(r, "userID"), services.UpdateInput{
		Name:        trimmedOrNil(req.Name),
		Email:       trimmedOrNil(req.Email),
		Password:    nonEmptyOrNil(req.Password),
		PhoneNumber: trimmedOrNil(req.PhoneNumber),
		Address:     trimmedOrNil(req.Address),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, UpdateResponse{Message: "Successfully updated!", Token: token})
}

// Delete removes the caller's own account.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := h.accounts.Delete(r.Context(), caller, chi.URLParam(r, "userID")); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Account successfully deleted"})
}

func (h *AccountHandler) caller(w http.ResponseWriter, r *http.Request) (services.Identity, bool) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperr.New(apperr.KindMalformedToken, "unauthorized"))
		return services.Identity{}, false
	}
	return identity, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, "invalid request", err)
	}
	return nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func nonEmptyOrNil(value *string) *string {
	if value == nil || *value == "" {
		return nil
	}
	return value
}
