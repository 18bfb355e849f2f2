package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/guarded-reply/internal/app/bootstrap"
	appconfig "github.com/wolfman30/guarded-reply/internal/config"
)

// LoadAWSConfig builds the AWS config shared by the api and worker binaries.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.AWSSessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: load aws config: %w", err)
	}

	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.EndpointResolverWithOptions = localEndpointResolver(endpoint, cfg.AWSRegion, overriddenServices(cfg))
	}
	return awsCfg, nil
}

// overriddenServices lists the AWS services this deployment actually uses
// that LocalStack can emulate. Bedrock is never redirected.
func overriddenServices(cfg *appconfig.Config) map[string]bool {
	services := make(map[string]bool, 3)
	if !cfg.UseMemoryQueue {
		services[sqs.ServiceID] = true
	}
	if cfg.ClaimBackend == bootstrap.ClaimBackendDynamo {
		services[dynamodb.ServiceID] = true
	}
	if strings.TrimSpace(cfg.SendGridAPIKey) == "" && strings.TrimSpace(cfg.SESFromEmail) != "" {
		services[sesv2.ServiceID] = true
	}
	return services
}

func localEndpointResolver(endpoint, region string, services map[string]bool) aws.EndpointResolverWithOptions {
	return aws.EndpointResolverWithOptionsFunc(
		func(service, _ string, _ ...interface{}) (aws.Endpoint, error) {
			if !services[service] {
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			}
			return aws.Endpoint{
				URL:               endpoint,
				PartitionID:       "aws",
				SigningRegion:     region,
				HostnameImmutable: true,
			}, nil
		},
	)
}
