// Package llm provides the AI Confidence Gate's provider-switched
// extractor client (spec §4.F), mirroring the teacher corpus's
// NewClient(cfg, logger) -> (Client, error) provider-switch shape.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/sirupsen/logrus"

	"github.com/dioceseharvest/pipeline/internal/config"
	"github.com/dioceseharvest/pipeline/pkg/shared/logging"
)

// Client is the provider-agnostic schedule-extraction call.
type Client interface {
	// Complete sends prompt to the configured model and returns its raw
	// text response.
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewClient builds the configured provider's Client.
func NewClient(cfg config.AIConfig, logger *logrus.Logger) (Client, error) {
	if logger == nil {
		logger = logrus.New()
	}
	entry := logger.WithFields(logging.AIFields("new_client", cfg.Model).ToLogrus())

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	switch cfg.Provider {
	case "anthropic":
		return &anthropicClient{
			client:  anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
			model:   cfg.Model,
			timeout: timeout,
			logger:  entry,
		}, nil
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("load aws config for bedrock provider: %w", err)
		}
		return &bedrockClient{
			client:  bedrockruntime.NewFromConfig(awsCfg),
			model:   cfg.Model,
			timeout: timeout,
			logger:  entry,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

type anthropicClient struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	logger  *logrus.Entry
}

func (c *anthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}
	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}

type bedrockClient struct {
	client  *bedrockruntime.Client
	model   string
	timeout time.Duration
	logger  *logrus.Entry
}

func (c *bedrockClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := []byte(fmt.Sprintf(`{"prompt":%q,"max_tokens":1024}`, prompt))
	out, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.model),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", err
	}
	return string(out.Body), nil
}
