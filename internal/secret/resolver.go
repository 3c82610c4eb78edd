// Package secret resolves the host's runtime secrets (the token signing key
// and the OIDC client secret) by parameter path. Deployments read
// SecureString parameters from SSM Parameter Store; DEV_MODE reads the
// environment with variable names derived from the same paths.
package secret

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Resolver turns a parameter path such as "/wopihost/token-secret" into the
// secret it names. Resolved values are never empty.
type Resolver interface {
	Resolve(ctx context.Context, param string) (string, error)
}

// SSMClient is the subset of *ssm.Client used by ParameterStore.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ParameterStore resolves SecureString parameters with decryption.
type ParameterStore struct {
	client SSMClient
}

// FromParameterStore returns a Resolver backed by SSM Parameter Store.
func FromParameterStore(client SSMClient) *ParameterStore {
	return &ParameterStore{client: client}
}

func (p *ParameterStore) Resolve(ctx context.Context, param string) (string, error) {
	out, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("resolve parameter %s: %w", param, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", param)
	}
	value := strings.TrimSpace(*out.Parameter.Value)
	if value == "" {
		return "", fmt.Errorf("parameter %s is empty", param)
	}
	return value, nil
}

// Environment resolves secrets from process environment variables. The
// variable name keeps the full parameter path, uppercased with separators
// mapped to underscores, so "/wopihost/token-secret" reads
// WOPIHOST_TOKEN_SECRET. Keeping the project segment in the name means two
// services sharing a shell cannot pick up each other's secrets.
type Environment struct{}

// FromEnvironment returns a Resolver over the process environment.
func FromEnvironment() Environment {
	return Environment{}
}

func (Environment) Resolve(_ context.Context, param string) (string, error) {
	name := envName(param)
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("%s is not set (parameter %s)", name, param)
	}
	return value, nil
}

func envName(param string) string {
	mapped := strings.NewReplacer("/", "_", "-", "_").Replace(strings.Trim(param, "/"))
	return strings.ToUpper(mapped)
}
