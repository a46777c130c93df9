package aigate

import (
	"encoding/json"
	"strings"

	"github.com/itchyny/gojq"
)

// Result is the AI extractor's typed output (spec §4.F result shape).
type Result struct {
	HasWeeklySchedule    bool     `json:"has_weekly_schedule"`
	DaysOffered          []string `json:"days_offered"`
	Times                []string `json:"times"`
	Frequency            string   `json:"frequency"`
	AppointmentRequired  bool     `json:"appointment_required"`
	ScheduleDetails      string   `json:"schedule_details"`
	Confidence           int      `json:"confidence"`
}

// requiredPaths are validated with gojq before a raw model response is
// trusted as a Result, catching truncated/malformed JSON the model
// sometimes returns despite the prompt's explicit shape.
var requiredPaths = []string{
	".has_weekly_schedule", ".confidence", ".days_offered", ".times",
}

// parseResult extracts the JSON object from raw (stripping any markdown
// code fence the model added despite instructions) and validates it has
// every required path before unmarshaling into Result.
func parseResult(raw string) (*Result, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return nil, errInvalidOutput("no JSON object found in response")
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, errInvalidOutput("response is not valid JSON: " + err.Error())
	}

	for _, path := range requiredPaths {
		query, err := gojq.Parse(path)
		if err != nil {
			return nil, err // a bad query is our bug, not an AI-output bug
		}
		if !pathPresent(query, doc) {
			return nil, errInvalidOutput("response missing required field " + path)
		}
	}

	var result Result
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, errInvalidOutput("response did not match result shape: " + err.Error())
	}
	return &result, nil
}

func pathPresent(query *gojq.Query, doc interface{}) bool {
	iter := query.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if err, ok := v.(error); ok {
			_ = err
			return false
		}
		return v != nil
	}
}

// extractJSONObject returns the first balanced top-level {...} substring
// in s, tolerating markdown fences around it.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// Accepted reports whether result clears threshold per spec §4.F's
// acceptance predicate.
func Accepted(result *Result, threshold int) bool {
	if result == nil || !result.HasWeeklySchedule {
		return false
	}
	if result.Confidence < threshold {
		return false
	}
	return len(result.DaysOffered) > 0 || len(result.Times) > 0
}
