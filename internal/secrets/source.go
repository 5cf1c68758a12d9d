// SPDX-License-Identifier: MPL-2.0

package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// DefaultRegion is used when neither the config nor AWS_REGION names one.
const DefaultRegion = "us-east-1"

type (
	// Source fetches the raw value of a named secret. ok is false when the
	// secret does not exist; err is reserved for access failures.
	Source interface {
		Fetch(ctx context.Context, name string) (value string, ok bool, err error)
	}

	// LocalSource reads secrets from files named after the secret in Dir.
	LocalSource struct {
		Dir string
	}

	// SecretsManagerAPI is the subset of the Secrets Manager client used here.
	SecretsManagerAPI interface {
		GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	}

	// AWSSource reads secrets from AWS Secrets Manager.
	AWSSource struct {
		client SecretsManagerAPI
	}
)

// LocalDir returns the conventional local secrets directory for a
// collection root: <root>/../.secrets/do_not_git.
func LocalDir(root string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(root)), ".secrets", "do_not_git")
}

// Fetch reads Dir/name and trims surrounding whitespace.
func (s LocalSource) Fetch(_ context.Context, name string) (string, bool, error) {
	if !filepath.IsLocal(name) {
		return "", false, fmt.Errorf("secret name %q escapes the secrets directory", name)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	value := strings.TrimSpace(string(data))
	return value, value != "", nil
}

// NewAWSSource loads the default AWS configuration (environment, shared
// config, instance role) for region. An empty region falls back to
// AWS_REGION, then DefaultRegion.
func NewAWSSource(ctx context.Context, region string) (*AWSSource, error) {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = DefaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewAWSSourceWithClient(secretsmanager.NewFromConfig(cfg)), nil
}

// NewAWSSourceWithClient wraps an existing client.
func NewAWSSourceWithClient(client SecretsManagerAPI) *AWSSource {
	return &AWSSource{client: client}
}

// Fetch returns SecretString, or SecretBinary decoded as UTF-8.
func (s *AWSSource) Fetch(ctx context.Context, name string) (string, bool, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if out.SecretString != nil {
		return *out.SecretString, true, nil
	}
	if len(out.SecretBinary) > 0 {
		return string(out.SecretBinary), true, nil
	}
	return "", false, nil
}
