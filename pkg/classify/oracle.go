// Package classify batches scan identities through a text classification
// oracle and resolves their final compliance status.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

// Oracle completes a prompt with a JSON document.
// Implementations report failures with utils.ErrOracleBlocked,
// utils.ErrOracleEmpty or utils.ErrOracleNetwork.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GeminiOracle calls a Google Gemini model through langchaingo.
type GeminiOracle struct {
	llm   llms.Model
	model string
	log   *logrus.Entry
}

// NewGeminiOracle creates an oracle for cfg. The API key is read from the
// environment variable named by cfg.APIKeyEnv.
func NewGeminiOracle(ctx context.Context, cfg config.OracleConfig, log *logrus.Entry) (*GeminiOracle, error) {
	if cfg.Provider != "" && cfg.Provider != "googleai" {
		return nil, fmt.Errorf("%w: unsupported oracle provider %q", utils.ErrConfigValidation, cfg.Provider)
	}
	key := cfg.APIKey()
	if key == "" {
		return nil, fmt.Errorf("%w: environment variable %s is not set", utils.ErrConfigValidation, cfg.APIKeyEnv)
	}
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(key),
		googleai.WithDefaultModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: init googleai client: %w", utils.ErrOracleNetwork, err)
	}
	return &GeminiOracle{
		llm:   llm,
		model: cfg.Model,
		log:   log.WithFields(logrus.Fields{"component": "oracle", "model": cfg.Model}),
	}, nil
}

// Complete sends prompt as a single user turn in JSON mode.
func (g *GeminiOracle) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.llm.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
		llms.WithModel(g.model),
		llms.WithTemperature(0),
		llms.WithJSONMode(),
	)
	if err != nil {
		return "", classifyCallError(err)
	}
	return responseText(resp)
}

// classifyCallError maps a client error onto the oracle sentinels.
func classifyCallError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isBlockedReason(err.Error()) {
		return fmt.Errorf("%w: %w", utils.ErrOracleBlocked, err)
	}
	return fmt.Errorf("%w: %w", utils.ErrOracleNetwork, err)
}

func responseText(resp *llms.ContentResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", utils.ErrOracleEmpty
	}
	choice := resp.Choices[0]
	if isBlockedReason(choice.StopReason) {
		return "", fmt.Errorf("%w: finish reason %s", utils.ErrOracleBlocked, choice.StopReason)
	}
	if strings.TrimSpace(choice.Content) == "" {
		return "", utils.ErrOracleEmpty
	}
	return choice.Content, nil
}

// isBlockedReason matches Gemini safety and block-list finish reasons.
func isBlockedReason(s string) bool {
	s = strings.ToLower(s)
	for _, marker := range []string{"safety", "blocked", "blocklist", "prohibited_content", "block reason"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
