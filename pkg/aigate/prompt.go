package aigate

import "github.com/tmc/langchaingo/prompts"

// scheduleTemplate asks the model to extract one schedule type's details
// from already-cleaned page text and return nothing but the JSON result
// shape (spec §4.F).
const scheduleTemplate = `You are extracting {{.schedule_type}} information for a Catholic parish from its website content.

Parish: {{.parish_name}}
Page content:
{{.content}}

Respond with ONLY a JSON object matching this exact shape, no prose:
{
  "has_weekly_schedule": bool,
  "days_offered": [string],
  "times": [string],
  "frequency": string,
  "appointment_required": bool,
  "schedule_details": string,
  "confidence": int (0-100)
}`

// repairTemplate is sent once when the first response fails to parse into
// the result shape (spec §4.F: "retries once with a repair prompt").
const repairTemplate = `Your previous response could not be parsed as the required JSON object. Here it is again:

{{.previous_response}}

Return ONLY a valid JSON object with exactly these fields: has_weekly_schedule (bool), days_offered (array of strings), times (array of strings), frequency (string), appointment_required (bool), schedule_details (string), confidence (integer 0-100). No prose, no markdown fences.`

var schedulePrompt = prompts.NewPromptTemplate(scheduleTemplate, []string{"schedule_type", "parish_name", "content"})
var repairPrompt = prompts.NewPromptTemplate(repairTemplate, []string{"previous_response"})

func buildSchedulePrompt(scheduleType, parishName, content string) (string, error) {
	return schedulePrompt.Format(map[string]any{
		"schedule_type": scheduleType,
		"parish_name":   parishName,
		"content":       content,
	})
}

func buildRepairPrompt(previous string) (string, error) {
	return repairPrompt.Format(map[string]any{"previous_response": previous})
}
