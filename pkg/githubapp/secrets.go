package githubapp

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerKeyFetcher implements SigningKeyFetcher against AWS Secrets
// Manager, where the App's private key PEM is stored at GitHubAppPrivateKeyArn.
type SecretsManagerKeyFetcher struct {
	Client *secretsmanager.Client
	ARN    string
}

// FetchPrivateKeyPEM retrieves the PEM-encoded RSA private key.
func (f *SecretsManagerKeyFetcher) FetchPrivateKeyPEM(ctx context.Context) ([]byte, error) {
	out, err := f.Client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &f.ARN,
	})
	if err != nil {
		return nil, fmt.Errorf("getting app signing key secret: %w", err)
	}

	if out.SecretString != nil {
		return []byte(*out.SecretString), nil
	}
	return out.SecretBinary, nil
}
