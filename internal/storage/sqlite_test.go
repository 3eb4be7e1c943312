package storage

import (
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that indexes are created by the migrations.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_generations_user_created", "idx_jobs_status_run_after"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetAPIKey("u1", "gemini"); err != ErrNotFound {
		t.Fatalf("GetAPIKey on empty store: err = %v, want ErrNotFound", err)
	}

	if err := s.SetAPIKey("u1", "gemini", "AIza-first"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}
	if err := s.SetAPIKey("u1", "gemini", "AIza-second"); err != nil {
		t.Fatalf("SetAPIKey overwrite: %v", err)
	}

	got, err := s.GetAPIKey("u1", "gemini")
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if got != "AIza-second" {
		t.Errorf("GetAPIKey = %q, want %q", got, "AIza-second")
	}

	// Keys are scoped per user.
	if _, err := s.GetAPIKey("u2", "gemini"); err != ErrNotFound {
		t.Errorf("GetAPIKey(u2): err = %v, want ErrNotFound", err)
	}

	if err := s.DeleteAPIKey("u1", "gemini"); err != nil {
		t.Fatalf("DeleteAPIKey: %v", err)
	}
	if err := s.DeleteAPIKey("u1", "gemini"); err != ErrNotFound {
		t.Errorf("second DeleteAPIKey: err = %v, want ErrNotFound", err)
	}
}

func TestStyleProfileSupersedes(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetStyleProfile("u1"); err != ErrNotFound {
		t.Fatalf("GetStyleProfile on empty store: err = %v, want ErrNotFound", err)
	}

	if err := s.SaveStyleProfile("u1", `{"summary":"first"}`); err != nil {
		t.Fatalf("SaveStyleProfile: %v", err)
	}
	if err := s.SaveStyleProfile("u1", `{"summary":"second"}`); err != nil {
		t.Fatalf("SaveStyleProfile: %v", err)
	}

	got, err := s.GetStyleProfile("u1")
	if err != nil {
		t.Fatalf("GetStyleProfile: %v", err)
	}
	if got != `{"summary":"second"}` {
		t.Errorf("GetStyleProfile = %q, want the second profile", got)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM style_profiles WHERE user_id = 'u1'`).Scan(&count); err != nil {
		t.Fatalf("counting profiles: %v", err)
	}
	if count != 1 {
		t.Errorf("profile rows = %d, want 1", count)
	}
}

func TestSaveAndGetGeneration(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	want := Generation{
		ID:           "gen-1",
		UserID:       "u1",
		CreatedAt:    now,
		Topic:        "launch day",
		ParamsJSON:   `{"length":"short"}`,
		Content:      "We shipped.",
		Alternatives: `["We launched."]`,
		Confidence:   0.91,
		Model:        "gemini-1.5-flash",
		APIVersion:   "v1beta",
	}
	if err := s.SaveGeneration(want); err != nil {
		t.Fatalf("SaveGeneration: %v", err)
	}

	got, err := s.GetGeneration("gen-1")
	if err != nil {
		t.Fatalf("GetGeneration: %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	got.CreatedAt = want.CreatedAt
	if got != want {
		t.Errorf("GetGeneration = %+v, want %+v", got, want)
	}

	if _, err := s.GetGeneration("missing"); err != ErrNotFound {
		t.Errorf("GetGeneration(missing): err = %v, want ErrNotFound", err)
	}
}

func TestSaveGeneration_Defaults(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveGeneration(Generation{ID: "g", UserID: "u", CreatedAt: time.Now(), Topic: "t", Content: "c"}); err != nil {
		t.Fatalf("SaveGeneration: %v", err)
	}
	got, err := s.GetGeneration("g")
	if err != nil {
		t.Fatalf("GetGeneration: %v", err)
	}
	if got.ParamsJSON != "{}" {
		t.Errorf("ParamsJSON = %q, want {}", got.ParamsJSON)
	}
	if got.Alternatives != "[]" {
		t.Errorf("Alternatives = %q, want []", got.Alternatives)
	}
}

func TestListGenerations(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		g := Generation{
			ID:        fmt.Sprintf("gen-%02d", i),
			UserID:    "u1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Topic:     "topic",
			Content:   "content",
		}
		if err := s.SaveGeneration(g); err != nil {
			t.Fatalf("SaveGeneration(%d): %v", i, err)
		}
	}
	if err := s.SaveGeneration(Generation{ID: "other", UserID: "u2", CreatedAt: base, Topic: "t", Content: "c"}); err != nil {
		t.Fatalf("SaveGeneration(other): %v", err)
	}

	got, err := s.ListGenerations("u1", 3)
	if err != nil {
		t.Fatalf("ListGenerations: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Most recent first.
	if got[0].ID != "gen-04" {
		t.Errorf("first ID = %q, want %q", got[0].ID, "gen-04")
	}
	for _, g := range got {
		if g.UserID != "u1" {
			t.Errorf("generation %q belongs to %q", g.ID, g.UserID)
		}
	}
}

// TestJobsTableExists verifies the jobs table is created by migration and supports round-trip.
func TestJobsTableExists(t *testing.T) {
	s := openTestStore(t)

	_, err := s.db.Exec(`INSERT INTO jobs (id, type, payload_json) VALUES ('j1', 'style_analyze', '{"user_id":"u1"}')`)
	if err != nil {
		t.Fatalf("INSERT into jobs: %v", err)
	}

	var id, typ, payload, status string
	var attempts, maxAttempts int
	err = s.db.QueryRow(`SELECT id, type, payload_json, status, attempts, max_attempts FROM jobs WHERE id = 'j1'`).
		Scan(&id, &typ, &payload, &status, &attempts, &maxAttempts)
	if err != nil {
		t.Fatalf("SELECT from jobs: %v", err)
	}

	if id != "j1" {
		t.Errorf("id = %q, want %q", id, "j1")
	}
	if typ != "style_analyze" {
		t.Errorf("type = %q, want %q", typ, "style_analyze")
	}
	if payload != `{"user_id":"u1"}` {
		t.Errorf("payload_json = %q, want %q", payload, `{"user_id":"u1"}`)
	}
	if status != "pending" {
		t.Errorf("status = %q, want %q", status, "pending")
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0", attempts)
	}
	if maxAttempts != 3 {
		t.Errorf("max_attempts = %d, want 3", maxAttempts)
	}
}

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:          "j-claim-1",
		Type:        "style_analyze",
		PayloadJSON: `{"user_id":"u1","text":"t"}`,
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"style_analyze"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-claim-1" {
		t.Errorf("ID = %q, want %q", got.ID, "j-claim-1")
	}
	if got.Type != "style_analyze" {
		t.Errorf("Type = %q, want %q", got.Type, "style_analyze")
	}
	if got.PayloadJSON != `{"user_id":"u1","text":"t"}` {
		t.Errorf("PayloadJSON = %q, want %q", got.PayloadJSON, `{"user_id":"u1","text":"t"}`)
	}
	if got.Status != "running" {
		t.Errorf("Status = %q, want %q", got.Status, "running")
	}
	if got.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", got.MaxAttempts)
	}
}

func TestClaimNextJob_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ClaimNextJob([]string{"style_analyze"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestClaimNextJob_RespectRunAfter(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:          "j-future",
		Type:        "style_analyze",
		PayloadJSON: `{}`,
		RunAfter:    time.Now().UTC().Add(1 * time.Hour),
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"style_analyze"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for future run_after, got %+v", got)
	}
}

func TestClaimNextJob_TypeFilter(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-a", Type: "a", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob a: %v", err)
	}
	if err := s.EnqueueJob(Job{ID: "j-b", Type: "b", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob b: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"a"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.Type != "a" {
		t.Errorf("Type = %q, want %q", got.Type, "a")
	}
}

func TestClaimNextJob_SkipsRunning(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-first", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob first: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob first: %v", err)
	}

	if err := s.EnqueueJob(Job{ID: "j-second", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob second: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"x"})
	if err != nil {
		t.Fatalf("ClaimNextJob second: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-second" {
		t.Errorf("ID = %q, want %q", got.ID, "j-second")
	}
}

func TestCompleteJob(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-complete", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.CompleteJob("j-complete"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	j, err := s.GetJob("j-complete")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != "completed" {
		t.Errorf("GetJob status = %q, want %q", j.Status, "completed")
	}
	if _, err := s.GetJob("missing"); err != ErrNotFound {
		t.Errorf("GetJob(missing): err = %v, want ErrNotFound", err)
	}

	var status string
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'j-complete'`).Scan(&status); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if status != "completed" {
		t.Errorf("status = %q, want %q", status, "completed")
	}
}

func TestFailJob_IncrementsAttempts(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fail-inc", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob("j-fail-inc", "something broke"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	var status, lastError string
	var attempts int
	if err := s.db.QueryRow(`SELECT status, attempts, last_error FROM jobs WHERE id = 'j-fail-inc'`).Scan(&status, &attempts, &lastError); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if status != "pending" {
		t.Errorf("status = %q, want %q", status, "pending")
	}
	if lastError != "something broke" {
		t.Errorf("last_error = %q, want %q", lastError, "something broke")
	}
}

func TestFailJob_MaxAttemptsReached(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fail-max", Type: "x", PayloadJSON: `{}`, MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob("j-fail-max", "fatal"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	var status string
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'j-fail-max'`).Scan(&status); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if status != "failed" {
		t.Errorf("status = %q, want %q", status, "failed")
	}
}

func TestFailJob_SetsBackoff(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-backoff", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}

	before := time.Now().UTC()
	if err := s.FailJob("j-backoff", "retry"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	var runAfterStr string
	if err := s.db.QueryRow(`SELECT run_after FROM jobs WHERE id = 'j-backoff'`).Scan(&runAfterStr); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	runAfter, err := time.Parse(time.RFC3339, runAfterStr)
	if err != nil {
		t.Fatalf("parsing run_after: %v", err)
	}
	if !runAfter.After(before) {
		t.Errorf("run_after %v should be after %v", runAfter, before)
	}
}

func TestAbandonJob_NoRetry(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-abandon", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.AbandonJob("j-abandon", "gave up"); err != nil {
		t.Fatalf("AbandonJob: %v", err)
	}

	j, err := s.GetJob("j-abandon")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != "failed" || j.Attempts != 1 || j.LastError != "gave up" {
		t.Errorf("job = status %q attempts %d last_error %q, want failed/1/gave up", j.Status, j.Attempts, j.LastError)
	}

	next, err := s.ClaimNextJob([]string{"x"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if next != nil {
		t.Errorf("abandoned job was claimable again: %+v", next)
	}

	if err := s.AbandonJob("missing", "x"); err != ErrNotFound {
		t.Errorf("AbandonJob(missing) = %v, want ErrNotFound", err)
	}
}
