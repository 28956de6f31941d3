package config

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// SecretAccessor reads the payload of a secret version by its full resource name.
type SecretAccessor interface {
	Access(ctx context.Context, resourceName string) (string, error)
}

type secretManagerAccessor struct {
	client *secretmanager.Client
}

// NewSecretAccessor opens a Secret Manager client using Application Default Credentials.
func NewSecretAccessor(ctx context.Context) (SecretAccessor, func() error, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &secretManagerAccessor{client: client}, client.Close, nil
}

func (a *secretManagerAccessor) Access(ctx context.Context, resourceName string) (string, error) {
	result, err := a.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resourceName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret version %s: %w", resourceName, err)
	}
	return string(result.Payload.Data), nil
}

// NeedsSecretResolution reports whether any value must be read from Secret Manager.
func (c *Config) NeedsSecretResolution() bool {
	return (c.GeminiAPIKey == "" && c.GeminiAPIKeySecret != "") ||
		(c.StripeSecretKey == "" && c.StripeSecretKeySecret != "")
}

// ResolveSecrets fills plain values that were configured as Secret Manager resource names
// (projects/{project}/secrets/{name}/versions/{version}). Plain values always win.
func (c *Config) ResolveSecrets(ctx context.Context, accessor SecretAccessor) error {
	if c.GeminiAPIKey == "" && c.GeminiAPIKeySecret != "" {
		key, err := accessor.Access(ctx, c.GeminiAPIKeySecret)
		if err != nil {
			return fmt.Errorf("resolve GEMINI_API_KEY_SECRET: %w", err)
		}
		c.GeminiAPIKey = key
	}
	if c.StripeSecretKey == "" && c.StripeSecretKeySecret != "" {
		key, err := accessor.Access(ctx, c.StripeSecretKeySecret)
		if err != nil {
			return fmt.Errorf("resolve STRIPE_SECRET_KEY_SECRET: %w", err)
		}
		c.StripeSecretKey = key
	}
	return nil
}
