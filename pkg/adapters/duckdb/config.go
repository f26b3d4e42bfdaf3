package duckdb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds DuckDB-specific configuration.
// Parsed from adapter.Config.Params using mapstructure.
type Params struct {
	// Extensions to install and load (e.g., "httpfs", "spatial", "json")
	Extensions []string `mapstructure:"extensions"`

	// Secrets for cloud storage authentication
	Secrets []SecretConfig `mapstructure:"secrets"`

	// Settings to apply at session level (e.g., memory_limit, threads)
	Settings map[string]string `mapstructure:"settings"`
}

// SecretConfig defines a DuckDB secret for cloud storage.
type SecretConfig struct {
	// Type: "s3", "gcs", "azure", "r2", "huggingface"
	Type string `mapstructure:"type"`

	// Provider: "config", "credential_chain", "service_account", etc.
	Provider string `mapstructure:"provider"`

	// Region for S3 buckets
	Region string `mapstructure:"region,omitempty"`

	// Scope limits the secret to specific paths (string or []string)
	Scope any `mapstructure:"scope,omitempty"`

	// KeyID for explicit credentials (prefer credential_chain)
	KeyID string `mapstructure:"key_id,omitempty"`

	// Secret for explicit credentials (prefer credential_chain)
	Secret string `mapstructure:"secret,omitempty"`

	// Endpoint for S3-compatible services (MinIO, etc.)
	Endpoint string `mapstructure:"endpoint,omitempty"`

	// URLStyle: "vhost" or "path" for S3
	URLStyle string `mapstructure:"url_style,omitempty"`

	// UseSSL: whether to use HTTPS (default true)
	UseSSL *bool `mapstructure:"use_ssl,omitempty"`
}

// ParseParams decodes the free-form params map into DuckDB settings.
func ParseParams(raw map[string]any) (*Params, error) {
	params := &Params{}
	if len(raw) == 0 {
		return params, nil
	}
	if err := mapstructure.Decode(raw, params); err != nil {
		return nil, fmt.Errorf("invalid duckdb params: %w", err)
	}
	return params, nil
}

// applyParams installs extensions, creates secrets, and applies session
// settings right after connecting.
func (a *Adapter) applyParams(ctx context.Context) error {
	params, err := ParseParams(a.Cfg.Params)
	if err != nil {
		return err
	}

	for _, ext := range params.Extensions {
		a.Logger.Debug("loading duckdb extension", slog.String("extension", ext))
		if err := a.Exec(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}

	for i, secret := range params.Secrets {
		stmt, err := buildSecretSQL(i, secret)
		if err != nil {
			return err
		}
		if err := a.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create secret: %w", err)
		}
	}

	for key, value := range params.Settings {
		if err := a.Exec(ctx, fmt.Sprintf("SET %s = '%s';", key, value)); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", key, err)
		}
	}

	return nil
}

// buildSecretSQL renders one CREATE SECRET statement.
func buildSecretSQL(index int, secret SecretConfig) (string, error) {
	if secret.Type == "" {
		return "", fmt.Errorf("secret %d: type is required", index)
	}

	opts := []string{fmt.Sprintf("TYPE %s", strings.ToUpper(secret.Type))}
	if secret.Provider != "" {
		opts = append(opts, fmt.Sprintf("PROVIDER %s", secret.Provider))
	}
	if secret.Region != "" {
		opts = append(opts, fmt.Sprintf("REGION '%s'", secret.Region))
	}
	if secret.KeyID != "" {
		opts = append(opts, fmt.Sprintf("KEY_ID '%s'", secret.KeyID))
	}
	if secret.Secret != "" {
		opts = append(opts, fmt.Sprintf("SECRET '%s'", secret.Secret))
	}
	if secret.Endpoint != "" {
		opts = append(opts, fmt.Sprintf("ENDPOINT '%s'", secret.Endpoint))
	}
	if secret.URLStyle != "" {
		opts = append(opts, fmt.Sprintf("URL_STYLE '%s'", secret.URLStyle))
	}
	if secret.UseSSL != nil {
		opts = append(opts, fmt.Sprintf("USE_SSL %t", *secret.UseSSL))
	}
	switch scope := secret.Scope.(type) {
	case nil:
	case string:
		opts = append(opts, fmt.Sprintf("SCOPE '%s'", scope))
	case []any:
		parts := make([]string, 0, len(scope))
		for _, s := range scope {
			parts = append(parts, fmt.Sprintf("'%v'", s))
		}
		opts = append(opts, fmt.Sprintf("SCOPE (%s)", strings.Join(parts, ", ")))
	default:
		return "", fmt.Errorf("secret %d: scope must be a string or list", index)
	}

	name := fmt.Sprintf("driftlake_secret_%d", index)
	return fmt.Sprintf("CREATE OR REPLACE SECRET %s (%s);", name, strings.Join(opts, ", ")), nil
}
