// Package auth registers users, checks credentials and resolves bearer tokens
// to users.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sridharsr7/personal-task-manager/api"
	"github.com/sridharsr7/personal-task-manager/apperr"
	"github.com/sridharsr7/personal-task-manager/store"
	"github.com/sridharsr7/personal-task-manager/telemetry"
)

var tracer = telemetry.Tracer("github.com/sridharsr7/personal-task-manager/auth")

var (
	errRegisterFields   = apperr.Validation("Please provide username, password, email, and mobile")
	errLoginFields      = apperr.Validation("Please provide username and password")
	errInvalidLogin     = apperr.New(apperr.CodeInvalidCredentials, "Invalid credentials")
	errUnknownPrincipal = apperr.New(apperr.CodeUnauthenticated, "Not authorized, user not found")
)

// Service implements registration, login and token resolution.
type Service struct {
	users      store.UserStore
	tokens     *Tokens
	bcryptCost int
	now        func() time.Time
}

// NewService builds the auth service. A zero bcryptCost uses bcrypt's default.
func NewService(users store.UserStore, tokens *Tokens, bcryptCost int) *Service {
	return &Service{users: users, tokens: tokens, bcryptCost: bcryptCost, now: time.Now}
}

// Register creates a user and returns a fresh token for it.
func (s *Service) Register(ctx context.Context, req api.RegisterRequest) (resp api.AuthResponse, err error) {
	ctx, span := tracer.Start(ctx, "auth.Register")
	defer func() { telemetry.End(span, err) }()

	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	mobile := strings.TrimSpace(req.Mobile)
	if username == "" || req.Password == "" || email == "" || mobile == "" {
		return api.AuthResponse{}, errRegisterFields
	}

	if err := s.ensureFree(ctx, s.users.GetUserByUsername, username, store.ErrUsernameTaken); err != nil {
		return api.AuthResponse{}, err
	}
	if err := s.ensureFree(ctx, s.users.GetUserByEmail, email, store.ErrEmailTaken); err != nil {
		return api.AuthResponse{}, err
	}

	hash, err := HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return api.AuthResponse{}, apperr.Internal(err)
	}
	user, err := s.users.CreateUser(ctx, api.User{
		Username:     username,
		Email:        email,
		Mobile:       mobile,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
	})
	if err != nil {
		// The unique index catches registrations racing past ensureFree.
		if apperr.CodeOf(err) == apperr.CodeConflict {
			return api.AuthResponse{}, err
		}
		return api.AuthResponse{}, apperr.Internal(err)
	}
	span.SetAttributes(attribute.String("user.id", user.ID))
	return s.issue(user)
}

// ensureFree fails with taken when lookup finds a user for value.
func (s *Service) ensureFree(ctx context.Context, lookup func(context.Context, string) (api.User, error), value string, taken error) error {
	_, err := lookup(ctx, value)
	switch {
	case err == nil:
		return taken
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return apperr.Internal(err)
	}
}

// Login checks username and password and returns a fresh token. Unknown
// users and wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, req api.LoginRequest) (resp api.AuthResponse, err error) {
	ctx, span := tracer.Start(ctx, "auth.Login")
	defer func() { telemetry.End(span, err) }()

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return api.AuthResponse{}, errLoginFields
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		burnCompare(req.Password)
		return api.AuthResponse{}, errInvalidLogin
	}
	if err != nil {
		return api.AuthResponse{}, apperr.Internal(err)
	}
	if !CheckPassword(req.Password, user.PasswordHash) {
		return api.AuthResponse{}, errInvalidLogin
	}
	return s.issue(user)
}

func (s *Service) issue(user api.User) (api.AuthResponse, error) {
	token, _, err := s.tokens.Mint(user.ID)
	if err != nil {
		return api.AuthResponse{}, apperr.Internal(err)
	}
	return api.AuthResponse{ID: user.ID, Username: user.Username, Token: token}, nil
}

// Authenticate resolves a bearer token to the user it names. The returned
// user never carries the password hash.
func (s *Service) Authenticate(ctx context.Context, token string) (user api.User, err error) {
	ctx, span := tracer.Start(ctx, "auth.Authenticate")
	defer func() { telemetry.End(span, err) }()

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return api.User{}, err
	}
	user, err = s.users.GetUser(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return api.User{}, errUnknownPrincipal
	}
	if err != nil {
		return api.User{}, apperr.Internal(err)
	}
	user.PasswordHash = ""
	return user, nil
}
