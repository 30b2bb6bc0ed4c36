package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openfroyo/contentkit/pkg/builder"
	"github.com/openfroyo/contentkit/pkg/buildlog"
	"github.com/openfroyo/contentkit/pkg/pipeline"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testResult(id, project string, started time.Time, state builder.State) *builder.Result {
	p := buildlog.NewParser()
	c := buildlog.NewCollector()
	var events []buildlog.Event
	for _, line := range []string{
		"Build started 4/1/2024 10:00:00 AM",
		"/assets/tex.png(12,4): error TX1001: unsupported format",
		"header is corrupt",
		"/assets/a.wav: warning SND1: clipped",
	} {
		ev := p.Parse(line)
		events = append(events, ev)
		c.Add(ev)
	}
	return &builder.Result{
		ID:        id,
		Project:   project,
		Mode:      builder.ModeRebuild,
		Items:     []string{"tex.png"},
		State:     state,
		ExitCode:  1,
		Started:   started,
		Finished:  started.Add(2 * time.Second),
		Events:    events,
		Collector: c,
		Err:       errors.New("build tool exited with code 1"),
	}
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck before Init should fail")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"builds", "build_events"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Running again is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestRecordAndGetBuild(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	if err := store.RecordBuild(ctx, testResult("b-1", "/proj", started, builder.StateFailed)); err != nil {
		t.Fatalf("RecordBuild() error = %v", err)
	}

	rec, err := store.GetBuild(ctx, "b-1")
	if err != nil {
		t.Fatalf("GetBuild() error = %v", err)
	}
	if rec.Project != "/proj" || rec.Mode != "rebuild" || rec.State != "failed" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.ExitCode != 1 || rec.Errors != 1 || rec.Warnings != 1 {
		t.Errorf("ExitCode = %d, Errors = %d, Warnings = %d", rec.ExitCode, rec.Errors, rec.Warnings)
	}
	if len(rec.Items) != 1 || rec.Items[0] != "tex.png" {
		t.Errorf("Items = %v", rec.Items)
	}
	if rec.Error == nil || *rec.Error != "build tool exited with code 1" {
		t.Errorf("Error = %v", rec.Error)
	}
	if rec.Duration() != 2*time.Second {
		t.Errorf("Duration() = %s, want 2s", rec.Duration())
	}

	_, err = store.GetBuild(ctx, "missing")
	if !pipeline.IsClass(err, pipeline.ErrorClassValidation) {
		t.Errorf("GetBuild(missing) error = %v, want not-found", err)
	}
}

func TestListBuildEvents(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.RecordBuild(ctx, testResult("b-1", "/proj", time.Now(), builder.StateFailed)); err != nil {
		t.Fatalf("RecordBuild() error = %v", err)
	}

	events, err := store.ListBuildEvents(ctx, "b-1")
	if err != nil {
		t.Fatalf("ListBuildEvents() error = %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}

	wantKinds := []buildlog.EventKind{
		buildlog.EventBuildBegin,
		buildlog.EventDiagnostic,
		buildlog.EventDiagnosticContinuation,
		buildlog.EventDiagnostic,
	}
	for i, rec := range events {
		if rec.Seq != i {
			t.Errorf("events[%d].Seq = %d", i, rec.Seq)
		}
		if got := rec.Event().Kind; got != wantKinds[i] {
			t.Errorf("events[%d] kind = %s, want %s", i, got, wantKinds[i])
		}
	}

	diag := events[1].Event()
	if diag.Path != "/assets/tex.png" || diag.Line != 12 || diag.Column != "4" || diag.Code != "TX1001" {
		t.Errorf("diagnostic round trip = %+v", diag)
	}
	if events[0].Path != nil {
		t.Errorf("build_begin path = %v, want NULL", *events[0].Path)
	}
}

func TestListBuildsAndPrune(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"b-1", "b-2", "b-3"} {
		state := builder.StateFailed
		if i == 2 {
			state = builder.StateSucceeded
		}
		if err := store.RecordBuild(ctx, testResult(id, "/proj", base.Add(time.Duration(i)*time.Minute), state)); err != nil {
			t.Fatalf("RecordBuild(%s) error = %v", id, err)
		}
	}
	if err := store.RecordBuild(ctx, testResult("other", "/other", base, builder.StateFailed)); err != nil {
		t.Fatalf("RecordBuild(other) error = %v", err)
	}

	tests := []struct {
		name   string
		filter BuildFilter
		want   []string
	}{
		{"all newest first", BuildFilter{Project: "/proj"}, []string{"b-3", "b-2", "b-1"}},
		{"by state", BuildFilter{Project: "/proj", State: "failed"}, []string{"b-2", "b-1"}},
		{"limit", BuildFilter{Project: "/proj", Limit: 1}, []string{"b-3"}},
		{"offset", BuildFilter{Project: "/proj", Limit: 1, Offset: 1}, []string{"b-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builds, err := store.ListBuilds(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListBuilds() error = %v", err)
			}
			if len(builds) != len(tt.want) {
				t.Fatalf("got %d builds, want %d", len(builds), len(tt.want))
			}
			for i, id := range tt.want {
				if builds[i].ID != id {
					t.Errorf("builds[%d] = %s, want %s", i, builds[i].ID, id)
				}
			}
		})
	}

	n, err := store.PruneBuilds(ctx, "/proj", 1)
	if err != nil {
		t.Fatalf("PruneBuilds() error = %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d builds, want 2", n)
	}
	events, err := store.ListBuildEvents(ctx, "b-1")
	if err != nil {
		t.Fatalf("ListBuildEvents() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events of pruned build survived: %d", len(events))
	}
	if _, err := store.GetBuild(ctx, "other"); err != nil {
		t.Errorf("other project's build pruned: %v", err)
	}
}
