package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/devtube/backend/internal/models"
)

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockStore struct {
	users    map[string]*models.User
	profiles map[uuid.UUID]*models.Profile
}

func newMockStore() *mockStore {
	return &mockStore{
		users:    map[string]*models.User{},
		profiles: map[uuid.UUID]*models.Profile{},
	}
}

func (m *mockStore) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

func (m *mockStore) CreateUserTx(_ context.Context, _ pgx.Tx, u *models.User) error {
	if _, exists := m.users[u.Username]; exists {
		return &pgconn.PgError{Code: "23505"}
	}
	cp := *u
	m.users[u.Username] = &cp
	return nil
}

func (m *mockStore) CreateProfileTx(_ context.Context, _ pgx.Tx, p *models.Profile) error {
	cp := *p
	m.profiles[p.UserID] = &cp
	return nil
}

func (m *mockStore) GetByUsername(_ context.Context, username string) (*models.User, error) {
	u, ok := m.users[username]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

func (m *mockStore) GetAccount(_ context.Context, userID uuid.UUID) (*models.User, *models.Profile, error) {
	for _, u := range m.users {
		if u.ID == userID {
			return u, m.profiles[userID], nil
		}
	}
	return nil, nil, pgx.ErrNoRows
}

func (m *mockStore) UpdateProfile(context.Context, uuid.UUID, string, string, bool) error {
	return nil
}

func TestRegisterCreatesUserAndProfile(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, "secret", nil)

	u, err := svc.Register(context.Background(), "dev", "dev@example.com", "longenough")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("longenough")) != nil {
		t.Error("stored hash does not match password")
	}
	p, ok := store.profiles[u.ID]
	if !ok {
		t.Fatal("profile not created with user")
	}
	if len(p.Slug) != 8 {
		t.Errorf("profile slug length = %d, want 8", len(p.Slug))
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(newMockStore(), "secret", nil)
	if _, err := svc.Register(context.Background(), " ", "a@b.c", "longenough"); err != ErrInvalidInput {
		t.Errorf("empty username err = %v", err)
	}
	if _, err := svc.Register(context.Background(), "dev", "a@b.c", "short"); err != ErrWeakPassword {
		t.Errorf("short password err = %v", err)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, "secret", nil)
	if _, err := svc.Register(context.Background(), "dev", "a@b.c", "longenough"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(context.Background(), "dev", "other@b.c", "longenough"); err != ErrUsernameTaken {
		t.Errorf("duplicate err = %v, want ErrUsernameTaken", err)
	}
}

func TestLoginRoundTrip(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, "secret", nil)
	u, err := svc.Register(context.Background(), "dev", "a@b.c", "longenough")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	token, loggedIn, err := svc.Login(context.Background(), "dev", "longenough")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if loggedIn.ID != u.ID {
		t.Errorf("logged in as %s, want %s", loggedIn.ID, u.ID)
	}

	subject, err := svc.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if subject != u.ID {
		t.Errorf("token subject = %s, want %s", subject, u.ID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, "secret", nil)
	if _, err := svc.Register(context.Background(), "dev", "a@b.c", "longenough"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "dev", "wrongpass"); err != ErrInvalidCredentials {
		t.Errorf("wrong password err = %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "ghost", "longenough"); err != ErrInvalidCredentials {
		t.Errorf("unknown user err = %v", err)
	}
}

func TestValidateTokenRejectsForgery(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, "secret", nil)
	other := NewService(store, "other-secret", nil)
	if _, err := svc.Register(context.Background(), "dev", "a@b.c", "longenough"); err != nil {
		t.Fatalf("register: %v", err)
	}
	token, _, err := other.Login(context.Background(), "dev", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token); err == nil {
		t.Error("token signed with a different secret validated")
	}
	if _, err := svc.ValidateToken(context.Background(), "not-a-token"); err == nil {
		t.Error("garbage token validated")
	}
}

func TestValidateTokenRejectsTelegramLinkTokens(t *testing.T) {
	svc := NewService(newMockStore(), "secret", nil)

	// Same signing key and a user-id subject, but scoped to the bot link
	// flow and handed to a third party inside a t.me URL. It must never
	// work as a login bearer token.
	claims := jwt.RegisteredClaims{
		Subject:   uuid.New().String(),
		Audience:  jwt.ClaimStrings{"telegram-link"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := svc.ValidateToken(context.Background(), raw); err == nil {
		t.Error("telegram link token accepted as a login token")
	}
}
