package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/bissquit/user-service/internal/domain"
	"github.com/bissquit/user-service/internal/pkg/ctxlog"
	"github.com/bissquit/user-service/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Response messages. The login and gate messages never reveal which check failed.
const (
	msgInvalidCredentials = "Incorrect username or password"
	msgUnauthenticated    = "Could not validate credentials"
	msgDuplicateEmail     = "Email already registered"
)

var bearerChallenge = http.Header{"WWW-Authenticate": []string{"Bearer"}}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrDuplicateEmail, Status: http.StatusBadRequest, Message: msgDuplicateEmail},
	{Error: ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: msgInvalidCredentials, Header: bearerChallenge},
	{Error: ErrUnauthenticated, Status: http.StatusUnauthorized, Message: msgUnauthenticated, Header: bearerChallenge},
	{Error: ErrPasswordTooLong, Status: http.StatusBadRequest, Message: "password must be at most 72 bytes"},
	{Error: domain.ErrUnknownRole, Status: http.StatusBadRequest, Message: "unknown role"},
}

// Handler handles HTTP requests for the identity module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new identity handler.
func NewHandler(service *Service) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		service:   service,
		validator: v,
	}
}

// RegisterRoutes registers public identity routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/register", h.Register)
	})
}

// RegisterProtectedRoutes registers routes that require any authenticated user.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/users/me", h.Me)
}

// RegisterAdminRoutes registers routes restricted to AdminOnly.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/users", h.ListUsers)
	r.Post("/admin/create", h.CreateAdmin)
}

// UserResponse is the public representation of a user.
type UserResponse struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// LoginRequest represents login credentials. Email is also read from the
// "username" field of an OAuth2 password form.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /auth/login. It accepts a JSON body or an
// application/x-www-form-urlencoded OAuth2 password form.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLoginRequest(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	token, err := h.service.Login(r.Context(), LoginInput(req))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	httputil.JSON(w, http.StatusOK, TokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
	})
}

func decodeLoginRequest(r *http.Request) (LoginRequest, error) {
	var req LoginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return req, fmt.Errorf("parse form: %w", err)
		}
		req.Email = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
		return req, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("decode json: %w", err)
	}
	return req, nil
}

// RegisterRequest represents registration request body.
// Unknown fields, including "role", are ignored.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

// Register handles POST /auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), RegisterInput(req))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, toUserResponse(user))
}

// Me handles GET /users/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := httputil.Principal(r.Context())
	if user == nil {
		h.handleServiceError(w, r, ErrUnauthenticated)
		return
	}

	httputil.JSON(w, http.StatusOK, toUserResponse(user))
}

// ListUsers handles GET /users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), httputil.Principal(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := make([]UserResponse, 0, len(users))
	for i := range users {
		resp = append(resp, toUserResponse(&users[i]))
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// CreateUserRequest represents the body of POST /admin/create.
type CreateUserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Role      string `json:"role" validate:"omitempty,oneof=admin user ADMIN USER"`
}

// CreateAdmin handles POST /admin/create. The role defaults to admin.
func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := CreateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if req.Role != "" {
		role, err := domain.ParseRole(req.Role)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		input.Role = role
	}

	actor := httputil.Principal(r.Context())
	user, err := h.service.CreatePrivileged(r.Context(), input, actor)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	ctxlog.FromContext(r.Context()).Info("privileged user created",
		"user_id", user.ID,
		"role", user.Role,
		"created_by", actor.ID,
	)
	httputil.JSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var forbidden *ForbiddenError
	if errors.As(err, &forbidden) {
		httputil.Error(w, http.StatusForbidden, forbiddenMessage(forbidden.Allowed))
		return
	}

	httputil.HandleError(r.Context(), w, err, errorMappings)
}

func forbiddenMessage(allowed domain.RoleSet) string {
	return "Operation not permitted. Required roles: " + allowed.String()
}
