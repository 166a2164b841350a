package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{"plain", "alpha", nil},
		{"with dot", "a.b", nil},
		{"unicode", "привет", nil},
		{"empty", "", ErrEmptyID},
		{"blank", "   ", ErrEmptyID},
		{"slash", "a/b", ErrUnsafeID},
		{"backslash", `a\b`, ErrUnsafeID},
		{"dot", ".", ErrUnsafeID},
		{"dotdot", "..", ErrUnsafeID},
		{"nul", "a\x00b", ErrUnsafeID},
		{"padded", " a", ErrUnsafeID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateItems_Duplicate(t *testing.T) {
	items := []WorkItem{{ID: "a"}, {ID: "b"}, {ID: "a"}}

	err := ValidateItems(items)
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if !strings.Contains(err.Error(), "item 2") {
		t.Errorf("error should point at item 2: %v", err)
	}
}

func TestValidateItems_Empty(t *testing.T) {
	if err := ValidateItems(nil); err != nil {
		t.Fatalf("empty input should be valid: %v", err)
	}
}

func TestReport_Finalize(t *testing.T) {
	zone := time.FixedZone("X", 3*3600)
	r := Report{
		RunID:      uuid.New(),
		StartedAt:  time.Date(2026, 10, 19, 10, 0, 0, 0, zone),
		FinishedAt: time.Date(2026, 10, 19, 10, 0, 5, 0, zone),
		Results: []ProcessingResult{
			Succeeded("c", "out/c.mp3"),
			Failed("b", StageSynthesize, errors.New("boom")),
			Succeeded("a", "out/a.mp3"),
		},
	}

	r.Finalize()

	if r.Results[0].ID != "a" || r.Results[1].ID != "b" || r.Results[2].ID != "c" {
		t.Fatalf("results not sorted by id: %v", []string{r.Results[0].ID, r.Results[1].ID, r.Results[2].ID})
	}
	if r.Summary != (Summary{Total: 3, Succeeded: 2, Failed: 1}) {
		t.Errorf("unexpected summary: %+v", r.Summary)
	}
	if r.StartedAt.Location() != time.UTC {
		t.Error("StartedAt should be UTC")
	}

	failures := r.Failures()
	if len(failures) != 1 || failures[0].ID != "b" || failures[0].Reason != "boom" {
		t.Errorf("unexpected failures: %+v", failures)
	}
}

func TestProcessingResult_JSONOmitsErr(t *testing.T) {
	res := Failed("x", StageEncode, errors.New("ffmpeg exited"))

	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["stage"] != "encode" {
		t.Errorf("expected stage=encode, got %v", decoded["stage"])
	}
	if decoded["reason"] != "ffmpeg exited" {
		t.Errorf("expected reason, got %v", decoded["reason"])
	}
	if _, ok := decoded["Err"]; ok {
		t.Error("Err must not be serialized")
	}
}

func TestRun_Lifecycle(t *testing.T) {
	run := NewRun(RunSpec{EngineVariant: "tone", Strategy: "pool"}, []WorkItem{{ID: "a"}, {ID: "b"}})
	if run.Status != RunStatusPending || run.Total != 2 || run.EngineVariant != "tone" {
		t.Fatalf("unexpected new run: %+v", run)
	}

	run.MarkRunning()
	if run.Status != RunStatusRunning || run.StartedAt == nil {
		t.Fatal("run should be running")
	}

	run.MarkSucceeded(Summary{Total: 2, Succeeded: 1, Failed: 1})
	if !run.IsFinished() {
		t.Fatal("run should be finished")
	}
	if run.Succeeded != 1 || run.Failed != 1 {
		t.Errorf("counters not stored: %+v", run)
	}
	if run.Duration() < 0 {
		t.Error("duration should not be negative")
	}
}

func TestRun_Cancelled(t *testing.T) {
	run := NewRun(RunSpec{}, []WorkItem{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	run.MarkRunning()
	run.MarkCancelled(Summary{Total: 3, Succeeded: 1, Failed: 2})

	if run.Status != RunStatusCancelled || !run.IsFinished() {
		t.Fatalf("expected CANCELLED, got %s", run.Status)
	}
	if run.Succeeded != 1 || run.Failed != 2 {
		t.Errorf("counters not stored: %+v", run)
	}
}

func TestRun_JSONFlattensSpec(t *testing.T) {
	run := NewRun(RunSpec{EngineVariant: "piper", OutputDir: "snd"}, nil)
	b, err := json.Marshal(run)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["engine_variant"] != "piper" || decoded["output_dir"] != "snd" {
		t.Errorf("spec fields must be top-level: %s", b)
	}
	if _, ok := decoded["RunSpec"]; ok {
		t.Error("RunSpec must not be nested")
	}
}

func TestSchedule_IsDue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name  string
		sched Schedule
		want  bool
	}{
		{"due", Schedule{Enabled: true, NextDueAt: &past}, true},
		{"exactly now", Schedule{Enabled: true, NextDueAt: &now}, true},
		{"future", Schedule{Enabled: true, NextDueAt: &future}, false},
		{"disabled", Schedule{Enabled: false, NextDueAt: &past}, false},
		{"never scheduled", Schedule{Enabled: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sched.IsDue(now); got != tt.want {
				t.Errorf("IsDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSchedule_NewRun(t *testing.T) {
	sched := Schedule{
		ID:   uuid.New(),
		Spec: RunSpec{EngineVariant: "piper", Source: "words.tsv", OutputDir: "snd"},
	}
	run := sched.NewRun("key-1")

	if run.Status != RunStatusPending {
		t.Errorf("expected PENDING, got %s", run.Status)
	}
	if run.ScheduleID == nil || *run.ScheduleID != sched.ID {
		t.Error("schedule id not set")
	}
	if run.Source != "words.tsv" || run.IdempotencyKey != "key-1" {
		t.Errorf("unexpected run: %+v", run)
	}

	next := time.Now().Add(time.Hour)
	sched.RecordRun(run.ID, next)
	if sched.LastRunID == nil || *sched.LastRunID != run.ID || !sched.NextDueAt.Equal(next) {
		t.Errorf("run not recorded: %+v", sched)
	}
}
