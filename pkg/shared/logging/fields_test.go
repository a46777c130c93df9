package logging

import (
	"errors"
	"testing"
	"time"
)

func TestNewFields(t *testing.T) {
	fields := NewFields()
	if fields == nil {
		t.Fatal("NewFields() returned nil")
	}
	if len(fields) != 0 {
		t.Errorf("NewFields() should be empty, got %d fields", len(fields))
	}
}

func TestStandardFields_Component(t *testing.T) {
	fields := NewFields().Component("fetcher")
	if fields["component"] != "fetcher" {
		t.Errorf("Component() = %v, want %v", fields["component"], "fetcher")
	}
}

func TestStandardFields_Operation(t *testing.T) {
	fields := NewFields().Operation("claim_next")
	if fields["operation"] != "claim_next" {
		t.Errorf("Operation() = %v, want %v", fields["operation"], "claim_next")
	}
}

func TestStandardFields_Resource(t *testing.T) {
	fields := NewFields().Resource("diocese", "42")
	if fields["resource_type"] != "diocese" {
		t.Errorf("Resource() resource_type = %v, want %v", fields["resource_type"], "diocese")
	}
	if fields["resource_name"] != "42" {
		t.Errorf("Resource() resource_name = %v, want %v", fields["resource_name"], "42")
	}
}

func TestStandardFields_ResourceWithoutName(t *testing.T) {
	fields := NewFields().Resource("diocese", "")
	if fields["resource_type"] != "diocese" {
		t.Errorf("Resource() resource_type = %v, want %v", fields["resource_type"], "diocese")
	}
	if _, exists := fields["resource_name"]; exists {
		t.Error("Resource() should not set resource_name when empty")
	}
}

func TestStandardFields_Duration(t *testing.T) {
	duration := 150 * time.Millisecond
	fields := NewFields().Duration(duration)
	if fields["duration_ms"] != int64(150) {
		t.Errorf("Duration() = %v, want %v", fields["duration_ms"], int64(150))
	}
}

func TestStandardFields_Error(t *testing.T) {
	err := errors.New("test error")
	fields := NewFields().Error(err)
	if fields["error"] != "test error" {
		t.Errorf("Error() = %v, want %v", fields["error"], "test error")
	}
}

func TestStandardFields_ErrorNil(t *testing.T) {
	fields := NewFields().Error(nil)
	if _, exists := fields["error"]; exists {
		t.Error("Error(nil) should not set error field")
	}
}

func TestStandardFields_ChainedCalls(t *testing.T) {
	fields := NewFields().
		Component("coordinator").
		Operation("sweep").
		Resource("worker", "w-1").
		Count(3)

	if fields["component"] != "coordinator" || fields["operation"] != "sweep" {
		t.Errorf("chained fields missing component/operation: %v", fields)
	}
	if fields["count"] != 3 {
		t.Errorf("Count() = %v, want 3", fields["count"])
	}
}

func TestStandardFields_ToLogrus(t *testing.T) {
	fields := NewFields().Component("test").Operation("create")
	logrusFields := fields.ToLogrus()
	if logrusFields == nil {
		t.Fatal("ToLogrus() should not return nil")
	}
	if logrusFields["component"] != "test" {
		t.Errorf("ToLogrus() component = %v, want %v", logrusFields["component"], "test")
	}
}

func TestDatabaseFields(t *testing.T) {
	fields := DatabaseFields("upsert", "parish")
	expected := map[string]interface{}{
		"component":     "database",
		"operation":     "upsert",
		"resource_type": "table",
		"resource_name": "parish",
	}
	for key, want := range expected {
		if fields[key] != want {
			t.Errorf("DatabaseFields() %s = %v, want %v", key, fields[key], want)
		}
	}
}

func TestHTTPFields(t *testing.T) {
	fields := HTTPFields("GET", "/mass-times", 200)
	expected := map[string]interface{}{
		"component":   "http",
		"method":      "GET",
		"url":         "/mass-times",
		"status_code": 200,
	}
	for key, want := range expected {
		if fields[key] != want {
			t.Errorf("HTTPFields() %s = %v, want %v", key, fields[key], want)
		}
	}
}

func TestFetchFields(t *testing.T) {
	fields := FetchFields("parish.example.org", "https://parish.example.org/schedule")
	if fields["component"] != "fetch" {
		t.Errorf("FetchFields() component = %v, want fetch", fields["component"])
	}
	if fields["origin"] != "parish.example.org" {
		t.Errorf("FetchFields() origin = %v, want parish.example.org", fields["origin"])
	}
}

func TestCoordinatorFields(t *testing.T) {
	fields := CoordinatorFields("claim_next", "worker-a")
	if fields["component"] != "coordinator" || fields["worker_id"] != "worker-a" {
		t.Errorf("CoordinatorFields() = %v", fields)
	}
}

func TestBreakerFields(t *testing.T) {
	fields := BreakerFields("origin:parish.example.org", "OPEN")
	if fields["breaker_name"] != "origin:parish.example.org" || fields["state"] != "OPEN" {
		t.Errorf("BreakerFields() = %v", fields)
	}
}

func TestAIFields(t *testing.T) {
	fields := AIFields("classify_schedule", "claude-3-5-sonnet")
	expected := map[string]interface{}{
		"component": "ai",
		"operation": "classify_schedule",
		"model":     "claude-3-5-sonnet",
	}
	for key, want := range expected {
		if fields[key] != want {
			t.Errorf("AIFields() %s = %v, want %v", key, fields[key], want)
		}
	}
}

func TestMetricsFields(t *testing.T) {
	fields := MetricsFields("record", "fetch_latency_ms", 85.5)
	expected := map[string]interface{}{
		"component":   "metrics",
		"operation":   "record",
		"metric_name": "fetch_latency_ms",
		"value":       85.5,
	}
	for key, want := range expected {
		if fields[key] != want {
			t.Errorf("MetricsFields() %s = %v, want %v", key, fields[key], want)
		}
	}
}

func TestWorkflowFields(t *testing.T) {
	fields := WorkflowFields("run", "schedule-role")
	if fields["component"] != "workflow" || fields["resource_name"] != "schedule-role" {
		t.Errorf("WorkflowFields() = %v", fields)
	}
}

func TestSecurityFields(t *testing.T) {
	fields := SecurityFields("authenticate", "search-api-client")
	if fields["component"] != "security" || fields["subject"] != "search-api-client" {
		t.Errorf("SecurityFields() = %v", fields)
	}
}

func TestPerformanceFields(t *testing.T) {
	duration := 250 * time.Millisecond
	fields := PerformanceFields("fetch_parish_page", duration, true)
	expected := map[string]interface{}{
		"component":   "performance",
		"operation":   "fetch_parish_page",
		"duration_ms": int64(250),
		"success":     true,
	}
	for key, want := range expected {
		if fields[key] != want {
			t.Errorf("PerformanceFields() %s = %v, want %v", key, fields[key], want)
		}
	}
}
