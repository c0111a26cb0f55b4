package moderation

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/devtube/backend/internal/notify"
)

type mockStore struct {
	reports  int
	isFrozen bool
	authorID uuid.UUID
}

func (m *mockStore) IncrementReports(context.Context, uuid.UUID) (int, error) {
	m.reports++
	return m.reports, nil
}

func (m *mockStore) FreezeIfUnfrozen(context.Context, uuid.UUID) (bool, error) {
	if m.isFrozen {
		return false, nil
	}
	m.isFrozen = true
	return true, nil
}

func (m *mockStore) ListingOwner(context.Context, uuid.UUID) (uuid.UUID, string, error) {
	return m.authorID, "Chess Engine", nil
}

type mockNotifier struct {
	sent       []notify.Event
	adminSends int
}

func (m *mockNotifier) Send(_ context.Context, e notify.Event)       { m.sent = append(m.sent, e) }
func (m *mockNotifier) SendAdmins(_ context.Context, _ notify.Event) { m.adminSends++ }

func TestReportBelowThreshold(t *testing.T) {
	store := &mockStore{authorID: uuid.New()}
	n := &mockNotifier{}
	svc := NewService(store, n, nil)

	for i := 1; i <= 9; i++ {
		count, err := svc.Report(context.Background(), uuid.New(), uuid.New())
		if err != nil {
			t.Fatalf("report %d: %v", i, err)
		}
		if count != i {
			t.Fatalf("count = %d, want %d", count, i)
		}
	}
	if store.isFrozen {
		t.Error("frozen below threshold")
	}
	if len(n.sent) != 0 || n.adminSends != 0 {
		t.Errorf("notifications fired below threshold: %d user, %d admin", len(n.sent), n.adminSends)
	}
}

func TestReportThresholdFreezesOnce(t *testing.T) {
	store := &mockStore{reports: 9, authorID: uuid.New()}
	n := &mockNotifier{}
	svc := NewService(store, n, nil)
	listingID := uuid.New()

	count, err := svc.Report(context.Background(), uuid.New(), listingID)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if count != 10 {
		t.Fatalf("count = %d, want 10", count)
	}
	if !store.isFrozen {
		t.Fatal("listing not frozen at threshold")
	}
	if len(n.sent) != 1 || n.adminSends != 1 {
		t.Fatalf("got %d author + %d admin notifications, want 1 + 1", len(n.sent), n.adminSends)
	}
	if n.sent[0].RecipientID != store.authorID {
		t.Errorf("author notification went to %s", n.sent[0].RecipientID)
	}

	// The 11th report increments the counter but the freeze guard loses, so
	// no second notification fires.
	count, err = svc.Report(context.Background(), uuid.New(), listingID)
	if err != nil {
		t.Fatalf("Report past threshold: %v", err)
	}
	if count != 11 {
		t.Fatalf("count = %d, want 11", count)
	}
	if len(n.sent) != 1 || n.adminSends != 1 {
		t.Errorf("duplicate notifications past threshold: %d user, %d admin", len(n.sent), n.adminSends)
	}
}
