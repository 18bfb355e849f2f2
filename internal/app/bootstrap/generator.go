package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/guarded-reply/internal/config"
	"github.com/wolfman30/guarded-reply/internal/llm"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

// BuildGenerator wires Bedrock as the primary provider with Gemini as the
// fallback. Either may be used alone.
func BuildGenerator(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (*llm.Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var primary, secondary llm.Client
	defaultModel := strings.TrimSpace(cfg.BedrockModelID)
	if model := strings.TrimSpace(cfg.BedrockModelID); model != "" {
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: bedrock needs aws config")
		}
		primary = llm.NewBedrockClient(bedrockruntime.NewFromConfig(*awsCfg))
		logger.Info("bedrock generator enabled", "model", model)
	}
	if key := strings.TrimSpace(cfg.GeminiAPIKey); key != "" {
		gemini, err := llm.NewGeminiClient(ctx, key, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		role := "fallback"
		if primary == nil {
			primary, role = gemini, "primary"
			defaultModel = cfg.GeminiModelID
		} else {
			secondary = gemini
		}
		logger.Info("gemini generator enabled", "model", cfg.GeminiModelID, "role", role)
	}
	if primary == nil {
		return nil, fmt.Errorf("bootstrap: no reply generator configured (set BEDROCK_MODEL_ID or GEMINI_API_KEY)")
	}
	return llm.NewGenerator(llm.NewFallbackClient(primary, secondary, logger), defaultModel), nil
}
