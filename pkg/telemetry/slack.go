package telemetry

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
)

// SlackNotifier posts best-effort alerts to a Slack incoming webhook.
// It fires on breaker OPEN transitions for the always-on breakers and
// on the coordinator's sweep reclaiming more than SweepReclaimThreshold
// dioceses at once (SPEC_FULL.md §3: "signals a worker outage").
type SlackNotifier struct {
	webhookURL            string
	sweepReclaimThreshold int
	logger                *logrus.Entry
}

// NewSlackNotifier builds a SlackNotifier posting to webhookURL. A nil
// *SlackNotifier (or one built with an empty webhookURL) is safe to call
// methods on: they become no-ops, matching "Slack alerting: optional."
func NewSlackNotifier(webhookURL string, sweepReclaimThreshold int, logger *logrus.Logger) *SlackNotifier {
	if logger == nil {
		logger = logrus.New()
	}
	if sweepReclaimThreshold <= 0 {
		sweepReclaimThreshold = 5
	}
	return &SlackNotifier{
		webhookURL:            webhookURL,
		sweepReclaimThreshold: sweepReclaimThreshold,
		logger:                logger.WithField("component", "slack_notifier"),
	}
}

func (s *SlackNotifier) post(text string) {
	if s == nil || s.webhookURL == "" {
		return
	}
	msg := &slack.WebhookMessage{Text: text}
	if err := slack.PostWebhook(s.webhookURL, msg); err != nil {
		s.logger.WithError(err).Warn("slack webhook post failed")
	}
}

// NotifyBreakerOpen alerts that breaker name tripped to OPEN.
func (s *SlackNotifier) NotifyBreakerOpen(name string, failureCount int) {
	s.post(fmt.Sprintf(":red_circle: circuit breaker `%s` opened after %d failures", name, failureCount))
}

// NotifySweepReclaim alerts that the coordinator's sweep reclaimed count
// dioceses at once, if count exceeds the configured threshold.
func (s *SlackNotifier) NotifySweepReclaim(count int) {
	if s == nil || count <= s.sweepReclaimThreshold {
		return
	}
	s.post(fmt.Sprintf(":warning: sweep reclaimed %d diocese assignments at once, possible worker outage", count))
}
