package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/store"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/xid"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

type AuthManager struct {
	secret         []byte
	tokenTTL       time.Duration
	enrollmentHash string
	users          UserStore
	now            func() time.Time
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
}

type barClaims struct {
	jwtlib.RegisteredClaims
	Name  string `json:"name"`
	Owner bool   `json:"owner"`
}

// NewAuthManager keeps only a bcrypt hash of the owner enrollment code. An
// empty code disables self-service owner registration.
func NewAuthManager(secret string, tokenTTL time.Duration, enrollmentCode string, users UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	manager := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		now:      time.Now,
	}
	if code := strings.TrimSpace(enrollmentCode); code != "" {
		if hashed, err := hashPassword(code); err == nil {
			manager.enrollmentHash = hashed
		}
	}
	return manager
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := a.users.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}
	if !verifyPassword(user.PasswordHash, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !user.Active {
		return domain.LoginResponse{}, fmt.Errorf("%w: account is inactive", store.ErrForbidden)
	}
	return a.issue(*user)
}

// Register creates a customer account and signs it in.
func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest) (domain.LoginResponse, error) {
	return a.register(ctx, req, false)
}

// RegisterOwner creates an owner account. The caller must either be an
// owner already or present the enrollment code.
func (a *AuthManager) RegisterOwner(ctx context.Context, req domain.RegisterRequest, caller *domain.Actor) (domain.LoginResponse, error) {
	if caller == nil || !caller.IsOwner {
		if !a.ValidateEnrollmentCode(req.EnrollmentCode) {
			return domain.LoginResponse{}, fmt.Errorf("%w: owner enrollment code required", store.ErrForbidden)
		}
	}
	return a.register(ctx, req, true)
}

func (a *AuthManager) ValidateEnrollmentCode(code string) bool {
	input := strings.TrimSpace(code)
	if input == "" || !isPasswordHash(a.enrollmentHash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.enrollmentHash), []byte(input)) == nil
}

func (a *AuthManager) register(ctx context.Context, req domain.RegisterRequest, owner bool) (domain.LoginResponse, error) {
	name := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(name) < 2 {
		return domain.LoginResponse{}, fmt.Errorf("%w: name must be at least 2 characters", store.ErrInvalidInput)
	}
	email := normalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return domain.LoginResponse{}, fmt.Errorf("%w: email is not valid", store.ErrInvalidInput)
	}
	if len(req.Password) < 6 {
		return domain.LoginResponse{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidInput)
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("failed to hash password")
	}
	user := domain.UserAccount{
		ID:           xid.New("usr"),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		IsOwner:      owner,
		Active:       true,
		Provider:     ProviderPassword,
		CreatedAt:    a.now().UTC(),
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.LoginResponse{}, fmt.Errorf("%w: email already registered", store.ErrConflict)
		}
		return domain.LoginResponse{}, err
	}
	return a.issue(user)
}

// LoginExternal signs in a user vouched for by an identity provider,
// creating a customer account on first sight.
func (a *AuthManager) LoginExternal(ctx context.Context, email, name, provider string) (domain.LoginResponse, error) {
	email = normalizeEmail(email)
	if email == "" {
		return domain.LoginResponse{}, fmt.Errorf("%w: provider returned no email", store.ErrInvalidInput)
	}
	user, err := a.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !user.Active {
			return domain.LoginResponse{}, fmt.Errorf("%w: account is inactive", store.ErrForbidden)
		}
		return a.issue(*user)
	case !errors.Is(err, store.ErrNotFound):
		return domain.LoginResponse{}, err
	}

	if strings.TrimSpace(name) == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	created := domain.UserAccount{
		ID:        xid.New("usr"),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Active:    true,
		Provider:  provider,
		CreatedAt: a.now().UTC(),
	}
	if err := a.users.CreateUser(ctx, created); err != nil {
		return domain.LoginResponse{}, err
	}
	return a.issue(created)
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &barClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{UserID: sub, Name: claims.Name, IsOwner: claims.Owner}, nil
}

// Profile loads the stored account behind actor.
func (a *AuthManager) Profile(ctx context.Context, actor domain.Actor) (domain.UserProfile, error) {
	user, err := a.users.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return user.Profile(), nil
}

func (a *AuthManager) issue(user domain.UserAccount) (domain.LoginResponse, error) {
	expiresAt := a.now().UTC().Add(a.tokenTTL)
	token, err := a.sign(user, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
		Profile:     user.Profile(),
	}, nil
}

func (a *AuthManager) sign(user domain.UserAccount, expiresAt time.Time) (string, error) {
	claims := barClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(a.now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "barapp",
		},
		Name:  user.Name,
		Owner: user.IsOwner,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
