// Package secrets resolves the database password.
//
// Sources, first match wins: the configured password, a Secrets Manager entry
// whose JSON carries a "password" field, or a short-lived RDS IAM token.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/euoc/aws-data-pipeline/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	json "github.com/goccy/go-json"
)

// ErrNoPasswordSource means none of the password sources is configured.
var ErrNoPasswordSource = errors.New("no password source configured")

// SecretGetter is the part of *secretsmanager.Client the resolver uses.
type SecretGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// TokenBuilder signs an RDS IAM auth token. auth.BuildAuthToken satisfies it.
type TokenBuilder func(ctx context.Context, endpoint, region, dbUser string, creds aws.CredentialsProvider, optFns ...func(*auth.BuildAuthTokenOptions)) (string, error)

// Resolver looks up database passwords.
type Resolver struct {
	secrets    SecretGetter
	creds      aws.CredentialsProvider
	region     string
	buildToken TokenBuilder
}

// NewResolver builds a resolver on an already loaded AWS config.
func NewResolver(cfg aws.Config) *Resolver {
	return &Resolver{
		secrets:    secretsmanager.NewFromConfig(cfg),
		creds:      cfg.Credentials,
		region:     cfg.Region,
		buildToken: auth.BuildAuthToken,
	}
}

// Password returns the password for db.
func (r *Resolver) Password(ctx context.Context, db config.DB) (string, error) {
	switch {
	case db.Password != "":
		return db.Password, nil
	case db.SecretName != "":
		return r.fromSecret(ctx, db.SecretName)
	case db.IAMAuth:
		return r.iamToken(ctx, db)
	default:
		return "", ErrNoPasswordSource
	}
}

type secretPayload struct {
	Password string `json:"password"`
}

func (r *Resolver) fromSecret(ctx context.Context, name string) (string, error) {
	if r.secrets == nil {
		return "", fmt.Errorf("secret %q: secrets manager client not configured", name)
	}
	out, err := r.secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("get secret %q: %w", name, err)
	}
	raw := aws.ToString(out.SecretString)
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("secret %q: empty secret string", name)
	}

	var p secretPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return "", fmt.Errorf("secret %q: decode json: %w", name, err)
	}
	if p.Password == "" {
		return "", fmt.Errorf("secret %q: no password field", name)
	}
	return p.Password, nil
}

func (r *Resolver) iamToken(ctx context.Context, db config.DB) (string, error) {
	if r.creds == nil || r.buildToken == nil {
		return "", fmt.Errorf("rds iam auth: aws credentials not configured")
	}
	if r.region == "" {
		return "", fmt.Errorf("rds iam auth: region not configured")
	}
	token, err := r.buildToken(ctx, db.Endpoint(), r.region, db.User, r.creds)
	if err != nil {
		return "", fmt.Errorf("failed to build RDS auth token: %w", err)
	}
	return token, nil
}
