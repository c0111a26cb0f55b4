package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	pgxv5 "github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/devtube/backend/internal/models"
	"github.com/devtube/backend/internal/slug"
)

const tokenTTL = 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username or email already taken")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidInput       = errors.New("username and email are required")
)

// Store is the persistence surface of the auth service.
type Store interface {
	Begin(ctx context.Context) (pgxv5.Tx, error)
	CreateUserTx(ctx context.Context, tx pgxv5.Tx, u *models.User) error
	CreateProfileTx(ctx context.Context, tx pgxv5.Tx, p *models.Profile) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetAccount(ctx context.Context, userID uuid.UUID) (*models.User, *models.Profile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, bio, avatarURL string, unlinkTelegram bool) error
}

type Service struct {
	store  Store
	secret []byte
	log    *slog.Logger
}

func NewService(store Store, jwtSecret string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, secret: []byte(jwtSecret), log: log}
}

// Register creates the user and its profile in one transaction; there is
// never a user without a profile.
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" {
		return nil, ErrInvalidInput
	}
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	// A duplicate can come from username/email or from the generated profile
	// slug; a few retries cover slug collisions, the rest is a taken name.
	for attempt := 0; attempt < 3; attempt++ {
		err := s.registerOnce(ctx, u)
		if err == nil {
			return u, nil
		}
		if !IsDuplicate(err) {
			return nil, err
		}
		if existing, lookupErr := s.store.GetByUsername(ctx, username); lookupErr == nil && existing != nil {
			return nil, ErrUsernameTaken
		}
	}
	return nil, ErrUsernameTaken
}

func (s *Service) registerOnce(ctx context.Context, u *models.User) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.store.CreateUserTx(ctx, tx, u); err != nil {
		return err
	}
	p := &models.Profile{ID: uuid.New(), UserID: u.ID, Slug: slug.New(slug.ProfileLen)}
	if err := s.store.CreateProfileTx(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Login checks the password and issues a 24h JWT with the user id subject
// and an admin claim.
func (s *Service) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	u, err := s.store.GetByUsername(ctx, username)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   u.ID.String(),
		"admin": u.IsAdmin,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenTTL).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, u, nil
}

// ValidateToken verifies a bearer token and returns the subject user id.
// Login tokens never carry an audience; anything that does (the short-lived
// Telegram link tokens share the signing key) is not a login token and gets
// rejected.
func (s *Service) ValidateToken(_ context.Context, raw string) (uuid.UUID, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return uuid.Nil, err
	}
	aud, err := token.Claims.GetAudience()
	if err != nil {
		return uuid.Nil, err
	}
	if len(aud) > 0 {
		return uuid.Nil, errors.New("token is not a login token")
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(sub)
}

// GetAccount satisfies the middleware loader.
func (s *Service) GetAccount(ctx context.Context, userID uuid.UUID) (*models.User, *models.Profile, error) {
	return s.store.GetAccount(ctx, userID)
}

func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, bio, avatarURL string, unlinkTelegram bool) error {
	return s.store.UpdateProfile(ctx, userID, bio, avatarURL, unlinkTelegram)
}
