package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/guarded-reply/internal/analytics"
	appconfig "github.com/wolfman30/guarded-reply/internal/config"
	"github.com/wolfman30/guarded-reply/internal/events"
	"github.com/wolfman30/guarded-reply/internal/notify"
	"github.com/wolfman30/guarded-reply/internal/tenant"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

// BuildEmailSender prefers SendGrid, then SES, then a logging stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, string) {
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		return sg, "sendgrid"
	}
	if from := strings.TrimSpace(cfg.SESFromEmail); from != "" && awsCfg != nil {
		ses := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail:        from,
			FromName:         cfg.SendGridFromName,
			ConfigurationSet: cfg.SESConfigurationSet,
		}, logger)
		if ses != nil {
			return ses, "ses"
		}
	}
	return notify.NewStubEmailSender(logger), "stub"
}

// BuildOutboxHandler routes decision events to analytics cache invalidation
// and draft events to staff notification.
func BuildOutboxHandler(cfg *appconfig.Config, awsCfg *aws.Config, redisClient redis.Cmdable, settings *tenant.Store, logger *logging.Logger) *events.Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	dispatcher := events.NewDispatcher()
	if redisClient != nil {
		dispatcher.On(events.EventTypeDecisionRecorded, analytics.NewInvalidator(redisClient, logger))
	}
	if settings != nil {
		sender, provider := BuildEmailSender(cfg, awsCfg, logger)
		dispatcher.On(events.EventTypeDraftCreated, notify.NewDraftNotifier(sender, settings, logger))
		logger.Info("draft notifications enabled", "provider", provider)
	}
	return dispatcher
}
