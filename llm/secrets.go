// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretsAPI is the Secrets Manager surface used here. Tests substitute
// their own implementation.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretResolver fetches provider API keys from AWS Secrets Manager so
// production deployments never carry keys in environment variables.
type SecretResolver struct {
	client secretsAPI
}

// NewSecretResolver loads the default AWS config for the region.
func NewSecretResolver(ctx context.Context, region string) (*SecretResolver, error) {
	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SecretResolver{client: secretsmanager.NewFromConfig(awsCfg)}, nil
}

// ResolveAPIKey fetches the secret at the given ARN. JSON secrets yield
// their "api_key" field; plain-string secrets are returned whole.
func (r *SecretResolver) ResolveAPIKey(ctx context.Context, secretARN string) (string, error) {
	result, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", maskARN(secretARN), err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", maskARN(secretARN))
	}

	value := *result.SecretString
	var fields map[string]string
	if err := json.Unmarshal([]byte(value), &fields); err == nil {
		if key, ok := fields["api_key"]; ok && key != "" {
			return key, nil
		}
		return "", fmt.Errorf("secret %s has no api_key field", maskARN(secretARN))
	}
	return value, nil
}

// maskARN keeps only the trailing secret name so logs never reveal the
// full resource path.
func maskARN(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) < 2 {
		return "***"
	}
	return "***:" + parts[len(parts)-1]
}
