package credentials

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/movie-explorer/catalog-ingest/internal/config"
)

var _ Provider = (*SecretsManagerProvider)(nil)

type (
	// SecretsManagerAPI is the subset of the Secrets Manager client the provider uses.
	SecretsManagerAPI interface {
		GetSecretValue(
			ctx context.Context,
			params *secretsmanager.GetSecretValueInput,
			optFns ...func(*secretsmanager.Options),
		) (*secretsmanager.GetSecretValueOutput, error)
	}

	// SecretsManagerProvider reads secrets from AWS Secrets Manager.
	SecretsManagerProvider struct {
		client SecretsManagerAPI
		logger *slog.Logger
	}
)

// NewSecretsManagerProvider wraps an existing client.
func NewSecretsManagerProvider(client SecretsManagerAPI, logger *slog.Logger) *SecretsManagerProvider {
	if logger == nil {
		logger = config.NewLogger()
	}

	return &SecretsManagerProvider{client: client, logger: logger}
}

// NewSecretsManagerProviderFromEnv loads the default AWS configuration for region.
func NewSecretsManagerProviderFromEnv(ctx context.Context, region string, logger *slog.Logger) (*SecretsManagerProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load AWS configuration: %w", ErrCredentials, err)
	}

	return NewSecretsManagerProvider(secretsmanager.NewFromConfig(cfg), logger), nil
}

// DatabaseCredentials fetches and decodes the database secret key.
func (p *SecretsManagerProvider) DatabaseCredentials(ctx context.Context, key string) (*DatabaseCredentials, error) {
	document, err := p.secret(ctx, key)
	if err != nil {
		return nil, err
	}

	return ParseDatabaseSecret(document)
}

// StoreToken fetches the remote-store token secret key verbatim.
func (p *SecretsManagerProvider) StoreToken(ctx context.Context, key string) ([]byte, error) {
	return p.secret(ctx, key)
}

func (p *SecretsManagerProvider) secret(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: secret id is empty", ErrCredentials)
	}

	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(key),
	})
	if err != nil {
		p.logger.Error("Failed to retrieve secret",
			slog.String("secret_id", key),
			slog.String("error", err.Error()))

		return nil, fmt.Errorf("%w: failed to retrieve secret %s: %w", ErrCredentials, key, err)
	}

	switch {
	case out.SecretString != nil:
		return []byte(aws.ToString(out.SecretString)), nil
	case len(out.SecretBinary) > 0:
		return out.SecretBinary, nil
	default:
		return nil, fmt.Errorf("%w: secret %s has no value", ErrCredentials, key)
	}
}
