package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/me/stagehand/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleRun(id string) *model.Run {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.Run{
		ID:              id,
		EngineID:        "eng-" + id,
		Workflow:        "/data/wf/main.wdl",
		Inputs:          "gs://bucket/inputs.json",
		LocalizedInputs: "/tmp/bucket/inputs.local.json",
		TargetKind:      "local",
		State:           model.RunSubmitted,
		Labels:          map[string]string{"project": "test"},
		SubmittedAt:     now,
		UpdatedAt:       now,
	}
}

func TestRunCRUD(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	run := sampleRun("run-1")
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("get returned nil")
	}
	if got.Workflow != run.Workflow {
		t.Errorf("Workflow = %q, want %q", got.Workflow, run.Workflow)
	}
	if got.State != model.RunSubmitted {
		t.Errorf("State = %q", got.State)
	}
	if got.Labels["project"] != "test" {
		t.Errorf("Labels = %v", got.Labels)
	}
	if !got.SubmittedAt.Equal(run.SubmittedAt) {
		t.Errorf("SubmittedAt = %v, want %v", got.SubmittedAt, run.SubmittedAt)
	}

	got.State = model.RunRunning
	got.UpdatedAt = time.Now().UTC()
	if err := st.UpdateRun(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got2, err := st.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got2.State != model.RunRunning {
		t.Errorf("State after update = %q", got2.State)
	}

	if err := st.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	gone, err := st.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if gone != nil {
		t.Error("run still present after delete")
	}
}

func TestGetRunByEngineID(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	if err := st.CreateRun(ctx, sampleRun("run-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.GetRunByEngineID(ctx, "eng-run-1")
	if err != nil {
		t.Fatalf("get by engine id: %v", err)
	}
	if got == nil || got.ID != "run-1" {
		t.Fatalf("got %+v", got)
	}

	missing, err := st.GetRunByEngineID(ctx, "no-such")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown engine id")
	}
}

func TestGetRunNotFound(t *testing.T) {
	st := testStore(t)

	got, err := st.GetRun(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("expected nil for missing run")
	}
}

func TestUpdateRunNotFound(t *testing.T) {
	st := testStore(t)

	err := st.UpdateRun(context.Background(), sampleRun("missing"))
	if err == nil {
		t.Fatal("expected error updating missing run")
	}
}

func TestListRuns(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		run := sampleRun(fmt.Sprintf("run-%d", i))
		run.EngineID = fmt.Sprintf("eng-%d", i)
		run.SubmittedAt = base.Add(time.Duration(i) * time.Minute)
		if i >= 3 {
			run.State = model.RunSucceeded
		}
		if err := st.CreateRun(ctx, run); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	runs, total, err := st.ListRuns(ctx, model.ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(runs) != 5 {
		t.Fatalf("total = %d, len = %d", total, len(runs))
	}
	// Newest first.
	if runs[0].ID != "run-4" {
		t.Errorf("runs[0].ID = %q, want run-4", runs[0].ID)
	}

	succeeded, total, err := st.ListRuns(ctx, model.ListOptions{State: model.RunSucceeded})
	if err != nil {
		t.Fatalf("list by state: %v", err)
	}
	if total != 2 || len(succeeded) != 2 {
		t.Fatalf("succeeded total = %d, len = %d", total, len(succeeded))
	}

	page, total, err := st.ListRuns(ctx, model.ListOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if total != 5 {
		t.Errorf("paged total = %d", total)
	}
	if len(page) != 2 || page[0].ID != "run-2" {
		t.Fatalf("page = %v", page)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	st := testStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
