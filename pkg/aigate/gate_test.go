package aigate

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dioceseharvest/pipeline/internal/config"
	"github.com/dioceseharvest/pipeline/pkg/breaker"
)

type fakeClient struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		return f.responses[len(f.responses)-1], nil
	}
	return f.responses[i], nil
}

func testAIConfig() config.AIConfig {
	return config.AIConfig{BaseThreshold: 15, ThresholdFloor: 3, ThresholdCeil: 60, MaxAttempts: 2}
}

var _ = Describe("Gate.Evaluate", func() {
	It("accepts a well-formed, high-confidence result", func() {
		client := &fakeClient{responses: []string{
			`{"has_weekly_schedule": true, "days_offered": ["Sunday"], "times": ["9:00 AM"], "confidence": 90}`,
		}}
		g := New(testAIConfig(), client, breaker.NewRegistry(nil), nil, nil)

		result, err := g.Evaluate(context.Background(), "https://parish.example.org/mass-times", "St. Mary", "MassSchedule", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(result).NotTo(BeNil())
		Expect(result.Confidence).To(Equal(90))
	})

	It("rejects a result below the adaptive threshold", func() {
		client := &fakeClient{responses: []string{
			`{"has_weekly_schedule": true, "days_offered": ["Sunday"], "times": [], "confidence": 2}`,
		}}
		g := New(testAIConfig(), client, breaker.NewRegistry(nil), nil, nil)

		result, err := g.Evaluate(context.Background(), "https://parish.example.org/staff", "St. Mary", "MassSchedule", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(BeNil())
	})

	It("recovers via the repair prompt after one invalid-output response", func() {
		client := &fakeClient{responses: []string{
			"I cannot parse this, sorry.",
			`{"has_weekly_schedule": true, "days_offered": ["Sunday"], "times": [], "confidence": 90}`,
		}}
		g := New(testAIConfig(), client, breaker.NewRegistry(nil), nil, nil)

		result, err := g.Evaluate(context.Background(), "https://parish.example.org/mass-times", "St. Mary", "MassSchedule", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(result).NotTo(BeNil())
		Expect(client.calls).To(Equal(2))
	})

	It("returns nil, nil when the repair prompt also fails to parse", func() {
		client := &fakeClient{responses: []string{
			"not json",
			"still not json",
		}}
		g := New(testAIConfig(), client, breaker.NewRegistry(nil), nil, nil)

		result, err := g.Evaluate(context.Background(), "https://parish.example.org/mass-times", "St. Mary", "MassSchedule", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(BeNil())
	})

	It("propagates an error after exhausting retries on a transport failure", func() {
		client := &fakeClient{err: errors.New("connection reset")}
		g := New(testAIConfig(), client, breaker.NewRegistry(nil), nil, nil)

		_, err := g.Evaluate(context.Background(), "https://parish.example.org/mass-times", "St. Mary", "MassSchedule", "")
		Expect(err).To(HaveOccurred())
	})
})
