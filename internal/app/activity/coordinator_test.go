package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	userstore "github.com/dalemusser/kingsroom/internal/app/store/users"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// fakeStore is an in-memory user store for pipeline tests. Presence of a
// key means the user record exists; a nil value means the user has never
// been active. Like the real driver, it surfaces an expired context as an
// error on every call.
type fakeStore struct {
	mu         sync.Mutex
	users      map[string]*time.Time
	touchErr   map[string]error
	touchPanic map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      make(map[string]*time.Time),
		touchErr:   make(map[string]error),
		touchPanic: make(map[string]string),
	}
}

func (f *fakeStore) addUser(id string, last *time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = last
}

func (f *fakeStore) LastActiveAt(ctx context.Context, id string) (*time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.users[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return t, nil
}

func (f *fakeStore) TouchLastActive(ctx context.Context, id string, ts time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.touchPanic[id]; ok {
		panic(msg)
	}
	if err := f.touchErr[id]; err != nil {
		return err
	}
	if _, ok := f.users[id]; !ok {
		return userstore.ErrUserNotFound
	}
	f.users[id] = &ts
	return nil
}

func (f *fakeStore) lastActive(id string) *time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id]
}

func ago(d time.Duration) *time.Time {
	t := time.Now().UTC().Add(-d)
	return &t
}

func newTestCoordinator(store Store, cfg Config) *Coordinator {
	return NewCoordinator(store, cfg, zap.NewNop())
}

func TestCoordinator_HappyPath(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", ago(time.Hour))
	coord := newTestCoordinator(store, Config{ThrottleIntervalMinutes: 5})

	report, err := coord.Run(context.Background(), "", []Record{
		insertRecord("u1", "2024-05-01T10:00:00Z"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Processed != 1 || report.Written != 1 {
		t.Errorf("report = %+v, want processed=1 written=1", report)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if got := store.lastActive("u1"); got == nil || !got.Equal(want) {
		t.Errorf("last_active_at = %v, want %v", got, want)
	}
	if report.BatchID == "" {
		t.Error("report batch ID should be generated")
	}
}

func TestCoordinator_Throttled(t *testing.T) {
	store := newFakeStore()
	before := ago(time.Minute)
	store.addUser("u1", before)
	coord := newTestCoordinator(store, Config{ThrottleIntervalMinutes: 5})

	report, err := coord.Run(context.Background(), "b1", []Record{
		insertRecord("u1", time.Now().UTC().Format(time.RFC3339)),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Written != 0 || report.Throttled != 1 {
		t.Errorf("report = %+v, want written=0 throttled=1", report)
	}
	if got := store.lastActive("u1"); got == nil || !got.Equal(*before) {
		t.Errorf("last_active_at = %v, want unchanged %v", got, before)
	}
	if report.BatchID != "b1" {
		t.Errorf("batch ID = %q, want supplied ID", report.BatchID)
	}
}

func TestCoordinator_DedupWithMax(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", ago(24*time.Hour))
	store.addUser("u2", ago(24*time.Hour))
	coord := newTestCoordinator(store, Config{ThrottleIntervalMinutes: 5})

	report, err := coord.Run(context.Background(), "", []Record{
		insertRecord("u1", "2024-05-01T10:00:00Z"),
		insertRecord("u1", "2024-05-01T10:00:05Z"),
		insertRecord("u2", "2024-05-01T10:00:02Z"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Processed != 3 || report.Written != 2 {
		t.Errorf("report = %+v, want processed=3 written=2", report)
	}
	wantU1 := time.Date(2024, 5, 1, 10, 0, 5, 0, time.UTC)
	if got := store.lastActive("u1"); got == nil || !got.Equal(wantU1) {
		t.Errorf("u1 last_active_at = %v, want %v", got, wantU1)
	}
	wantU2 := time.Date(2024, 5, 1, 10, 0, 2, 0, time.UTC)
	if got := store.lastActive("u2"); got == nil || !got.Equal(wantU2) {
		t.Errorf("u2 last_active_at = %v, want %v", got, wantU2)
	}
}

func TestCoordinator_AbsentUser(t *testing.T) {
	store := newFakeStore()
	coord := newTestCoordinator(store, Config{ThrottleIntervalMinutes: 5})

	report, err := coord.Run(context.Background(), "", []Record{
		insertRecord("uX", "2024-05-01T10:00:00Z"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Absent != 1 || report.Written != 0 {
		t.Errorf("report = %+v, want absent=1 written=0", report)
	}
	store.mu.Lock()
	_, exists := store.users["uX"]
	store.mu.Unlock()
	if exists {
		t.Error("pipeline must never create user records")
	}
}

func TestCoordinator_NonInsertIgnored(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", ago(time.Hour))
	store.addUser("u2", ago(time.Hour))
	store.addUser("u3", ago(time.Hour))
	coord := newTestCoordinator(store, Config{ThrottleIntervalMinutes: 5})

	report, err := coord.Run(context.Background(), "", []Record{
		{Kind: KindModify, Image: map[string]any{fieldUserID: "u1"}},
		{Kind: KindRemove, Image: map[string]any{fieldUserID: "u2"}},
		insertRecord("u3", "2024-05-01T10:00:00Z"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Written != 1 {
		t.Errorf("report = %+v, want written=1 (only the insert)", report)
	}
	if got := store.lastActive("u1"); got == nil || time.Since(*got) < 50*time.Minute {
		t.Error("u1 should be untouched")
	}
}

func TestCoordinator_PartialFailureIsolated(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", ago(time.Hour))
	store.addUser("u2", ago(time.Hour))
	store.addUser("u3", ago(time.Hour))
	store.touchErr["u2"] = errors.New("provisioned throughput exceeded")
	coord := newTestCoordinator(store, Config{ThrottleIntervalMinutes: 5})

	report, err := coord.Run(context.Background(), "", []Record{
		insertRecord("u1", "2024-05-01T10:00:00Z"),
		insertRecord("u2", "2024-05-01T10:00:00Z"),
		insertRecord("u3", "2024-05-01T10:00:00Z"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v, batch must still be acknowledged", err)
	}
	if report.Written != 2 || report.Failed != 1 {
		t.Errorf("report = %+v, want written=2 failed=1", report)
	}
}

func TestCoordinator_PanicCountedAsFailed(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", ago(time.Hour))
	store.addUser("u2", ago(time.Hour))
	store.touchPanic["u1"] = "nil map write"
	coord := newTestCoordinator(store, Config{ThrottleIntervalMinutes: 5})

	report, err := coord.Run(context.Background(), "", []Record{
		insertRecord("u1", "2024-05-01T10:00:00Z"),
		insertRecord("u2", "2024-05-01T10:00:00Z"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v, batch must still be acknowledged", err)
	}
	if report.Failed != 1 || report.Written != 1 {
		t.Errorf("report = %+v, want failed=1 written=1", report)
	}
}

func TestCoordinator_ExpiredDeadlineCountedAsFailed(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", ago(time.Hour))
	coord := newTestCoordinator(store, Config{ThrottleIntervalMinutes: 5})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	report, err := coord.Run(ctx, "", []Record{
		insertRecord("u1", "2024-05-01T10:00:00Z"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v, batch must still be acknowledged", err)
	}
	if report.Failed != 1 || report.Written != 0 {
		t.Errorf("report = %+v, want failed=1 written=0", report)
	}
	if got := store.lastActive("u1"); got == nil || time.Since(*got) < 50*time.Minute {
		t.Error("u1 should be untouched after deadline failure")
	}
}

func TestCoordinator_FailBatchOnError(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", ago(time.Hour))
	store.touchErr["u1"] = errors.New("store down")
	coord := newTestCoordinator(store, Config{ThrottleIntervalMinutes: 5, FailBatchOnError: true})

	report, err := coord.Run(context.Background(), "", []Record{
		insertRecord("u1", "2024-05-01T10:00:00Z"),
	})
	if !errors.Is(err, ErrBatchFailed) {
		t.Errorf("err = %v, want ErrBatchFailed", err)
	}
	if report.Failed != 1 {
		t.Errorf("report = %+v, want failed=1", report)
	}
}

func TestCoordinator_ReplayIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", ago(24*time.Hour))
	store.addUser("u2", ago(24*time.Hour))
	coord := newTestCoordinator(store, Config{ThrottleIntervalMinutes: 5})

	batch := []Record{
		insertRecord("u1", "2024-05-01T10:00:00Z"),
		insertRecord("u2", "2024-05-01T10:00:02Z"),
		insertRecord("uX", "2024-05-01T10:00:03Z"),
	}

	var finals []map[string]time.Time
	for run := 0; run < 2; run++ {
		report, err := coord.Run(context.Background(), "", batch)
		if err != nil {
			t.Fatalf("Run() #%d error = %v", run, err)
		}
		sum := report.Written + report.Throttled + report.Absent + report.Failed
		if sum != 3 {
			t.Errorf("run %d: outcome sum = %d, want |D| = 3", run, sum)
		}
		snapshot := make(map[string]time.Time)
		for _, id := range []string{"u1", "u2"} {
			if ts := store.lastActive(id); ts != nil {
				snapshot[id] = *ts
			}
		}
		finals = append(finals, snapshot)
	}
	for id, first := range finals[0] {
		if !finals[1][id].Equal(first) {
			t.Errorf("%s: replay changed last_active_at %v -> %v", id, first, finals[1][id])
		}
	}
}

func TestCoordinator_EmptyBatch(t *testing.T) {
	coord := newTestCoordinator(newFakeStore(), Config{ThrottleIntervalMinutes: 5})
	report, err := coord.Run(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Processed != 0 || report.Written != 0 {
		t.Errorf("report = %+v, want all zero", report)
	}
}

func TestCoordinator_BoundedParallelism(t *testing.T) {
	store := newFakeStore()
	batch := make([]Record, 0, 50)
	for i := 0; i < 50; i++ {
		id := string(rune('a'+i%26)) + string(rune('0'+i/26))
		store.addUser(id, ago(time.Hour))
		batch = append(batch, insertRecord(id, "2024-05-01T10:00:00Z"))
	}
	coord := newTestCoordinator(store, Config{ThrottleIntervalMinutes: 5, MaxParallel: 4})

	report, err := coord.Run(context.Background(), "", batch)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Written != 50 {
		t.Errorf("written = %d, want 50", report.Written)
	}
}
