package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/guarded-reply/internal/config"
	"github.com/wolfman30/guarded-reply/internal/intake"
)

const memoryQueueBuffer = 1024

// BuildQueue returns the in-process queue when USE_MEMORY_QUEUE is set and
// SQS otherwise.
func BuildQueue(cfg *appconfig.Config, awsCfg *aws.Config) (intake.Queue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if cfg.UseMemoryQueue {
		return intake.NewMemoryQueue(memoryQueueBuffer), nil
	}
	if strings.TrimSpace(cfg.EventQueueURL) == "" {
		return nil, fmt.Errorf("bootstrap: EVENT_QUEUE_URL is required unless USE_MEMORY_QUEUE=true")
	}
	if awsCfg == nil {
		return nil, fmt.Errorf("bootstrap: sqs queue needs aws config")
	}
	return intake.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.EventQueueURL), nil
}
