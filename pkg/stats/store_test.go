package stats

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("initializing store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrating store: %v", err)
	}
	return store
}

func TestNewStoreRequiresPath(t *testing.T) {
	if _, err := NewStore(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.StartSession(ctx, "sorceress")
	if err != nil {
		t.Fatalf("starting session: %v", err)
	}

	sess, err := store.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	if sess.Character != "sorceress" {
		t.Errorf("unexpected character %s", sess.Character)
	}
	if sess.EndedAt != nil {
		t.Error("fresh session must not have an end time")
	}

	if err := store.EndSession(ctx, id); err != nil {
		t.Fatalf("ending session: %v", err)
	}
	sess, err = store.GetSession(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sess.EndedAt == nil {
		t.Error("expected end time after EndSession")
	}
}

func TestRecordRunUpdatesCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.StartSession(ctx, "sorceress")
	if err != nil {
		t.Fatal(err)
	}

	records := []RunRecord{
		{SessionID: id, Name: "pindleskin", Status: "succeeded", StartedAt: time.Now(), Duration: 40 * time.Second, Kills: 3, ItemsPicked: 2},
		{SessionID: id, Name: "pindleskin", Status: "died", StartedAt: time.Now(), Duration: 20 * time.Second},
		{SessionID: id, Name: "mephisto", Status: "chickened", StartedAt: time.Now(), Duration: 35 * time.Second},
	}
	for i, rec := range records {
		if err := store.RecordRun(ctx, rec); err != nil {
			t.Fatalf("recording run %d: %v", i, err)
		}
	}

	sess, err := store.GetSession(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Runs != 3 || sess.Successes != 1 || sess.Deaths != 1 || sess.Chickens != 1 {
		t.Errorf("unexpected counters: %+v", sess)
	}
	if sess.ItemsFound != 2 {
		t.Errorf("expected 2 items, got %d", sess.ItemsFound)
	}
}

func TestRecordErrorUpdatesCounter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.StartSession(ctx, "sorceress")
	if err != nil {
		t.Fatal(err)
	}

	err = store.RecordError(ctx, ErrorRecord{
		SessionID: id,
		Kind:      "stuck",
		Severity:  "recoverable",
		Origin:    "running",
		Message:   "no positional progress",
	})
	if err != nil {
		t.Fatalf("recording error: %v", err)
	}

	sess, err := store.GetSession(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Errors != 1 {
		t.Errorf("expected 1 error, got %d", sess.Errors)
	}
}

func TestSummarize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.StartSession(ctx, "sorceress")
	if err != nil {
		t.Fatal(err)
	}
	runs := []RunRecord{
		{SessionID: id, Name: "pindleskin", Status: "succeeded", StartedAt: time.Now(), Duration: 30 * time.Second},
		{SessionID: id, Name: "pindleskin", Status: "succeeded", StartedAt: time.Now(), Duration: 50 * time.Second},
		{SessionID: id, Name: "mephisto", Status: "failed", StartedAt: time.Now(), Duration: 60 * time.Second},
	}
	for _, rec := range runs {
		if err := store.RecordRun(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	sum, err := store.Summarize(ctx, id)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.RunsByName["pindleskin"] != 2 || sum.RunsByName["mephisto"] != 1 {
		t.Errorf("unexpected run grouping: %v", sum.RunsByName)
	}
	if sum.SuccessRate < 0.66 || sum.SuccessRate > 0.67 {
		t.Errorf("expected 2/3 success rate, got %.2f", sum.SuccessRate)
	}
	if sum.AvgDuration == 0 {
		t.Error("expected a nonzero average duration")
	}
}

func TestLatestSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	latest, err := store.LatestSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest != nil {
		t.Fatal("expected nil on an empty store")
	}

	if _, err := store.StartSession(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	id2, err := store.StartSession(ctx, "second")
	if err != nil {
		t.Fatal(err)
	}

	latest, err = store.LatestSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.ID != id2 {
		t.Fatalf("expected most recent session %s, got %+v", id2, latest)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetSession(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}
