// Package logging provides a fluent structured-fields builder on top of
// logrus so every package logs with the same vocabulary (component,
// operation, resource, duration, ...) instead of inventing field names
// ad hoc.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Fields is a fluent builder for structured log fields.
type Fields map[string]interface{}

// NewFields returns an empty Fields builder.
func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

func (f Fields) Resource(resourceType, resourceName string) Fields {
	f["resource_type"] = resourceType
	if resourceName != "" {
		f["resource_name"] = resourceName
	}
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) UserID(id string) Fields {
	if id != "" {
		f["user_id"] = id
	}
	return f
}

func (f Fields) RequestID(id string) Fields {
	f["request_id"] = id
	return f
}

func (f Fields) TraceID(id string) Fields {
	f["trace_id"] = id
	return f
}

func (f Fields) StatusCode(code int) Fields {
	f["status_code"] = code
	return f
}

func (f Fields) Method(method string) Fields {
	f["method"] = method
	return f
}

func (f Fields) URL(url string) Fields {
	f["url"] = url
	return f
}

func (f Fields) Count(n int) Fields {
	f["count"] = n
	return f
}

func (f Fields) Size(bytes int64) Fields {
	f["size_bytes"] = bytes
	return f
}

func (f Fields) Version(v string) Fields {
	f["version"] = v
	return f
}

func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// ToLogrus converts to the map type logrus.WithFields expects.
func (f Fields) ToLogrus() logrus.Fields {
	return logrus.Fields(f)
}

// DatabaseFields builds the standard field set for a persistence-adapter log line.
func DatabaseFields(operation, table string) Fields {
	return NewFields().Component("database").Operation(operation).Resource("table", table)
}

// HTTPFields builds the standard field set for an outbound/inbound HTTP log line.
func HTTPFields(method, url string, statusCode int) Fields {
	return NewFields().Component("http").Method(method).URL(url).StatusCode(statusCode)
}

// FetchFields builds the standard field set for a respectful-fetcher log line.
func FetchFields(origin, url string) Fields {
	return NewFields().Component("fetch").Custom("origin", origin).URL(url)
}

// CoordinatorFields builds the standard field set for a coordinator log line.
func CoordinatorFields(operation, workerID string) Fields {
	return NewFields().Component("coordinator").Operation(operation).Custom("worker_id", workerID)
}

// BreakerFields builds the standard field set for a circuit-breaker log line.
func BreakerFields(name, state string) Fields {
	return NewFields().Component("breaker").Custom("breaker_name", name).Custom("state", state)
}

// AIFields builds the standard field set for an AI-gate log line.
func AIFields(operation, model string) Fields {
	return NewFields().Component("ai").Operation(operation).Custom("model", model)
}

// MetricsFields builds the standard field set for a telemetry log line.
func MetricsFields(operation, metricName string, value float64) Fields {
	return NewFields().Component("metrics").Operation(operation).Custom("metric_name", metricName).Custom("value", value)
}

// WorkflowFields builds the standard field set for a router/role-loop log line.
func WorkflowFields(operation, resourceName string) Fields {
	return NewFields().Component("workflow").Operation(operation).Resource("workflow", resourceName)
}

// SecurityFields builds the standard field set for an auth/credential log line.
func SecurityFields(operation, subject string) Fields {
	return NewFields().Component("security").Operation(operation).Custom("subject", subject)
}

// PerformanceFields builds the standard field set for a timed-operation log line.
func PerformanceFields(operation string, duration time.Duration, success bool) Fields {
	return NewFields().Component("performance").Operation(operation).Duration(duration).Custom("success", success)
}
