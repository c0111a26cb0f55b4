package projects

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/devtube/backend/internal/middleware"
	"github.com/devtube/backend/internal/models"
	"github.com/devtube/backend/internal/notify"
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
	listings  map[uuid.UUID]*models.Listing
	slugs     map[string]bool
	dupeSlugs int // fail this many creates with a unique violation
	likes     map[uuid.UUID]map[uuid.UUID]bool
	views     int
	images    []*models.ListingImage
}

func newMockStore() *mockStore {
	return &mockStore{
		listings: map[uuid.UUID]*models.Listing{},
		slugs:    map[string]bool{},
		likes:    map[uuid.UUID]map[uuid.UUID]bool{},
	}
}

func (m *mockStore) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

func (m *mockStore) CreateTx(_ context.Context, _ pgx.Tx, l *models.Listing) error {
	if m.dupeSlugs > 0 || m.slugs[l.Slug] {
		m.dupeSlugs--
		return &pgconn.PgError{Code: "23505"}
	}
	m.slugs[l.Slug] = true
	cp := *l
	m.listings[l.ID] = &cp
	return nil
}

func (m *mockStore) UpdateTx(_ context.Context, _ pgx.Tx, l *models.Listing, rescan bool) error {
	cp := *l
	if rescan {
		cp.IsScanned = false
		cp.SecurityStatus = models.SecurityPending
	}
	m.listings[l.ID] = &cp
	return nil
}

func (m *mockStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.listings, id)
	return nil
}

func (m *mockStore) GetByID(_ context.Context, id uuid.UUID) (*models.Listing, error) {
	l, ok := m.listings[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return l, nil
}

func (m *mockStore) GetBySlug(_ context.Context, slug string) (*models.Listing, error) {
	for _, l := range m.listings {
		if l.Slug == slug {
			return l, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockStore) Search(context.Context, string, string, string) ([]*models.Listing, error) {
	return nil, nil
}
func (m *mockStore) Trending(context.Context) ([]*models.Listing, error) { return nil, nil }
func (m *mockStore) Feed(context.Context, uuid.UUID) ([]*models.Listing, error) {
	return nil, nil
}
func (m *mockStore) ListByAuthor(context.Context, uuid.UUID) ([]*models.Listing, error) {
	return nil, nil
}
func (m *mockStore) ListLiked(context.Context, uuid.UUID) ([]*models.Listing, error) {
	return nil, nil
}
func (m *mockStore) ListSaved(context.Context, uuid.UUID) ([]*models.Listing, error) {
	return nil, nil
}
func (m *mockStore) ListBought(context.Context, uuid.UUID) ([]*models.Listing, error) {
	return nil, nil
}

func (m *mockStore) IncrementViews(_ context.Context, id uuid.UUID) error {
	m.views++
	return nil
}

func (m *mockStore) ToggleLike(_ context.Context, listingID, userID uuid.UUID) (bool, error) {
	if m.likes[listingID] == nil {
		m.likes[listingID] = map[uuid.UUID]bool{}
	}
	if m.likes[listingID][userID] {
		delete(m.likes[listingID], userID)
		return false, nil
	}
	m.likes[listingID][userID] = true
	return true, nil
}

func (m *mockStore) ToggleSave(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return true, nil
}

func (m *mockStore) AddImage(_ context.Context, img *models.ListingImage) error {
	m.images = append(m.images, img)
	return nil
}

func (m *mockStore) ListImages(context.Context, uuid.UUID) ([]*models.ListingImage, error) {
	return m.images, nil
}

type mockUploader struct{ uploads int }

func (m *mockUploader) Upload(_ context.Context, name string, _ io.Reader) (string, error) {
	m.uploads++
	return "https://cdn/" + name, nil
}

type mockNotifier struct{ sent []notify.Event }

func (m *mockNotifier) Send(_ context.Context, e notify.Event) { m.sent = append(m.sent, e) }

func newTestService(store *mockStore, n *mockNotifier) (*Service, *int) {
	enqueued := 0
	enqueue := func(context.Context, pgx.Tx, uuid.UUID) error {
		enqueued++
		return nil
	}
	return NewService(store, &mockUploader{}, enqueue, n, nil), &enqueued
}

func account(id uuid.UUID, admin bool) *middleware.Account {
	return &middleware.Account{User: &models.User{ID: id, IsAdmin: admin}}
}

func validInput() Input {
	return Input{
		Title:    "Chess Engine",
		Category: models.CategoryAI,
		Price:    decimal.RequireFromString("40.00"),
	}
}

func TestCreateRetriesOnSlugCollision(t *testing.T) {
	store := newMockStore()
	store.dupeSlugs = 2
	svc, enqueued := newTestService(store, &mockNotifier{})

	l, err := svc.Create(context.Background(), uuid.New(), validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(l.Slug) != 11 {
		t.Errorf("slug length = %d, want 11", len(l.Slug))
	}
	if len(store.listings) != 1 {
		t.Errorf("stored %d listings, want 1", len(store.listings))
	}
	// No source content attached: nothing to scan, listing is live as safe.
	if *enqueued != 0 {
		t.Errorf("enqueued %d scans, want 0", *enqueued)
	}
	if !l.IsScanned || l.SecurityStatus != models.SecuritySafe {
		t.Errorf("no-content listing: scanned=%v status=%s", l.IsScanned, l.SecurityStatus)
	}
}

func TestCreateWithSourceEnqueuesScan(t *testing.T) {
	store := newMockStore()
	svc, enqueued := newTestService(store, &mockNotifier{})

	in := validInput()
	in.Source = &FileUpload{Name: "engine.zip", Size: 1024, Reader: strings.NewReader("zipbytes")}
	l, err := svc.Create(context.Background(), uuid.New(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if *enqueued != 1 {
		t.Errorf("enqueued %d scans, want 1", *enqueued)
	}
	if l.IsScanned || l.SecurityStatus != models.SecurityPending {
		t.Errorf("sourced listing: scanned=%v status=%s", l.IsScanned, l.SecurityStatus)
	}
	if l.SourceURL == "" || l.SourceName != "engine.zip" {
		t.Errorf("source not uploaded: url=%q name=%q", l.SourceURL, l.SourceName)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(newMockStore(), &mockNotifier{})
	cases := []struct {
		name string
		edit func(*Input)
		want error
	}{
		{"empty title", func(in *Input) { in.Title = "  " }, ErrInvalidTitle},
		{"bad category", func(in *Input) { in.Category = "crypto" }, ErrInvalidCategory},
		{"negative price", func(in *Input) { in.Price = decimal.RequireFromString("-1") }, ErrInvalidPrice},
		{"oversized source", func(in *Input) {
			in.Source = &FileUpload{Name: "big.zip", Size: maxSourceBytes + 1}
		}, ErrFileTooLarge},
		{"bad extension", func(in *Input) {
			in.Source = &FileUpload{Name: "tool.exe", Size: 10}
		}, ErrFileType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.edit(&in)
			if _, err := svc.Create(context.Background(), uuid.New(), in); err != tc.want {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDetailHidesFrozenFromStrangers(t *testing.T) {
	store := newMockStore()
	authorID := uuid.New()
	id := uuid.New()
	store.listings[id] = &models.Listing{ID: id, AuthorID: authorID, Slug: "frozen01", IsFrozen: true}
	svc, _ := newTestService(store, &mockNotifier{})

	if _, _, err := svc.Detail(context.Background(), account(uuid.New(), false), "frozen01"); err != ErrNotFound {
		t.Errorf("stranger err = %v, want ErrNotFound", err)
	}
	if _, _, err := svc.Detail(context.Background(), nil, "frozen01"); err != ErrNotFound {
		t.Errorf("anonymous err = %v, want ErrNotFound", err)
	}
	if _, _, err := svc.Detail(context.Background(), account(authorID, false), "frozen01"); err != nil {
		t.Errorf("author err = %v, want nil", err)
	}
	if _, _, err := svc.Detail(context.Background(), account(uuid.New(), true), "frozen01"); err != nil {
		t.Errorf("admin err = %v, want nil", err)
	}
}

func TestDetailCountsView(t *testing.T) {
	store := newMockStore()
	id := uuid.New()
	store.listings[id] = &models.Listing{ID: id, Slug: "viewme01"}
	svc, _ := newTestService(store, &mockNotifier{})

	l, _, err := svc.Detail(context.Background(), nil, "viewme01")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if store.views != 1 || l.Views != 1 {
		t.Errorf("views: counter=%d listing=%d, want 1/1", store.views, l.Views)
	}
}

func TestLikeNotifiesAuthorOnce(t *testing.T) {
	store := newMockStore()
	authorID := uuid.New()
	id := uuid.New()
	store.listings[id] = &models.Listing{ID: id, AuthorID: authorID}
	n := &mockNotifier{}
	svc, _ := newTestService(store, n)
	fan := uuid.New()

	liked, err := svc.Like(context.Background(), fan, id)
	if err != nil || !liked {
		t.Fatalf("Like: liked=%v err=%v", liked, err)
	}
	if len(n.sent) != 1 || n.sent[0].RecipientID != authorID {
		t.Fatalf("notifications = %+v, want one to author", n.sent)
	}

	// Unlike fires nothing.
	liked, err = svc.Like(context.Background(), fan, id)
	if err != nil || liked {
		t.Fatalf("unlike: liked=%v err=%v", liked, err)
	}
	if len(n.sent) != 1 {
		t.Errorf("unlike fired a notification")
	}
}

func TestUpdateAuthorOnly(t *testing.T) {
	store := newMockStore()
	authorID := uuid.New()
	id := uuid.New()
	store.listings[id] = &models.Listing{ID: id, AuthorID: authorID, Slug: "mine00000ab"}
	svc, enqueued := newTestService(store, &mockNotifier{})

	if _, err := svc.Update(context.Background(), account(uuid.New(), false), id, validInput()); err != ErrForbidden {
		t.Errorf("stranger update err = %v, want ErrForbidden", err)
	}

	in := validInput()
	in.Source = &FileUpload{Name: "v2.zip", Size: 100, Reader: strings.NewReader("v2")}
	l, err := svc.Update(context.Background(), account(authorID, false), id, in)
	if err != nil {
		t.Fatalf("author update: %v", err)
	}
	if *enqueued != 1 {
		t.Errorf("enqueued %d rescans, want 1", *enqueued)
	}
	if stored := store.listings[id]; stored.IsScanned || stored.SecurityStatus != models.SecurityPending {
		t.Errorf("rescan state: scanned=%v status=%s", stored.IsScanned, stored.SecurityStatus)
	}
	if l.Title != "Chess Engine" {
		t.Errorf("title = %q", l.Title)
	}
}
