package telemetry

import "testing"

func TestReporter_SetRoleAndCurrent(t *testing.T) {
	r := NewReporter(0, 0)
	r.SetRole("schedule")
	r.SetCurrent(12, 34)

	snap := r.Snapshot()
	if snap.Role != "schedule" {
		t.Errorf("Role = %q, want schedule", snap.Role)
	}
	if snap.CurrentDiocese != 12 || snap.CurrentParish != 34 {
		t.Errorf("Current = (%d,%d), want (12,34)", snap.CurrentDiocese, snap.CurrentParish)
	}
}

func TestReporter_IncrementProcessed(t *testing.T) {
	r := NewReporter(0, 0)
	r.IncrementProcessed()
	r.IncrementProcessed()
	if got := r.Snapshot().Processed; got != 2 {
		t.Errorf("Processed = %d, want 2", got)
	}
}

func TestReporter_RecordErrorBumpsCounterAndRingBuffer(t *testing.T) {
	r := NewReporter(2, 0)
	r.RecordError(1, 2, "fetch", "connection reset")
	r.RecordError(1, 0, "parse", "invalid html")

	if got := r.Snapshot().Errors; got != 2 {
		t.Errorf("Errors = %d, want 2", got)
	}
	events := r.ErrorEvents()
	if len(events) != 2 {
		t.Fatalf("ErrorEvents() = %d, want 2", len(events))
	}
	if events[0].Operation != "fetch" || events[1].Operation != "parse" {
		t.Errorf("ErrorEvents() = %+v", events)
	}
}

func TestReporter_ErrorRingBufferBounded(t *testing.T) {
	r := NewReporter(2, 0)
	r.RecordError(0, 0, "a", "1")
	r.RecordError(0, 0, "b", "2")
	r.RecordError(0, 0, "c", "3")

	events := r.ErrorEvents()
	if len(events) != 2 {
		t.Fatalf("ErrorEvents() = %d, want 2 (bounded)", len(events))
	}
	if events[0].Operation != "b" || events[1].Operation != "c" {
		t.Errorf("ErrorEvents() = %+v, want oldest dropped", events)
	}
}

func TestReporter_RecordCompletion(t *testing.T) {
	r := NewReporter(0, 0)
	r.RecordCompletion(5, "completed")
	r.RecordCompletion(6, "failed")

	completions := r.Completions()
	if len(completions) != 2 {
		t.Fatalf("Completions() = %d, want 2", len(completions))
	}
	if completions[0].Outcome != "completed" || completions[1].Outcome != "failed" {
		t.Errorf("Completions() = %+v", completions)
	}
}

func TestReporter_RecordLogLine(t *testing.T) {
	r := NewReporter(0, 3)
	r.RecordLogLine("line one")
	r.RecordLogLine("line two")

	lines := r.LogLines()
	if len(lines) != 2 || lines[0] != "line one" || lines[1] != "line two" {
		t.Errorf("LogLines() = %v", lines)
	}
}

func TestReporter_RecordErrorEnqueuesWhenPusherAttached(t *testing.T) {
	r := NewReporter(0, 0)
	p := NewPusher("", 4, nil) // empty URL: Enqueue becomes a no-op, exercised for the nil-safety path
	r.AttachPusher(p)

	r.RecordError(1, 0, "fetch", "boom")
	if got := r.Snapshot().Errors; got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
}
