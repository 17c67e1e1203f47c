package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func load(t *testing.T, env map[string]string, opts ...Option) (Config, error) {
	t.Helper()
	base := []Option{WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")}
	return Load(context.Background(), append(base, opts...)...)
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := load(t, map[string]string{"STOREFRONT_CATALOG_BASE_URL": "https://catalog.test/api"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Reviews.BaseURL != "https://catalog.test/api" {
		t.Errorf("expected reviews to default to the catalog url, got %s", cfg.Reviews.BaseURL)
	}
	if cfg.Catalog.Timeout != 8*time.Second {
		t.Errorf("unexpected catalog timeout: %s", cfg.Catalog.Timeout)
	}
	if cfg.Session.Backend != BackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Session.Backend)
	}
	if cfg.Session.Namespace != "storefront" {
		t.Errorf("unexpected namespace %s", cfg.Session.Namespace)
	}
	if cfg.Session.TTL != 30*24*time.Hour {
		t.Errorf("unexpected session ttl %s", cfg.Session.TTL)
	}
	if cfg.Session.IdleTimeout != 30*time.Minute {
		t.Errorf("unexpected idle timeout %s", cfg.Session.IdleTimeout)
	}
	if cfg.Firestore.Collection != "storefrontSessions" {
		t.Errorf("unexpected collection %s", cfg.Firestore.Collection)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("unexpected log level %s", cfg.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"STOREFRONT_CATALOG_BASE_URL":     "https://catalog.test",
		"STOREFRONT_REVIEWS_BASE_URL":     "https://reviews.test",
		"STOREFRONT_SERVER_PORT":          "9000",
		"STOREFRONT_SESSION_BACKEND":      "Redis",
		"STOREFRONT_REDIS_URL":            "redis://localhost:6379",
		"STOREFRONT_REDIS_DB":             "2",
		"STOREFRONT_SESSION_TTL":          "1h",
		"STOREFRONT_FIRESTORE_PROJECT_ID": "shop-dev",
		"STOREFRONT_PUBSUB_REVIEW_TOPIC":  "reviews",
		"STOREFRONT_CATALOG_TIMEOUT":      "not-a-duration",
	})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "9000" || cfg.Reviews.BaseURL != "https://reviews.test" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Session.Backend != BackendRedis || cfg.Redis.DB != 2 || cfg.Session.TTL != time.Hour {
		t.Errorf("unexpected session settings: %+v %+v", cfg.Session, cfg.Redis)
	}
	if cfg.PubSub.ProjectID != "shop-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Catalog.Timeout != 8*time.Second {
		t.Errorf("invalid duration should fall back to default, got %s", cfg.Catalog.Timeout)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name   string
		env    map[string]string
		fields []string
	}{
		{
			name:   "catalog url required",
			env:    map[string]string{},
			fields: []string{"Catalog.BaseURL"},
		},
		{
			name: "redis backend needs url",
			env: map[string]string{
				"STOREFRONT_CATALOG_BASE_URL": "https://c",
				"STOREFRONT_SESSION_BACKEND":  "redis",
				"STOREFRONT_REDIS_DB":         "20",
			},
			fields: []string{"Redis.URL", "Redis.DB"},
		},
		{
			name: "firestore backend needs project",
			env: map[string]string{
				"STOREFRONT_CATALOG_BASE_URL": "https://c",
				"STOREFRONT_SESSION_BACKEND":  "firestore",
			},
			fields: []string{"Firestore.ProjectID"},
		},
		{
			name: "unknown backend",
			env: map[string]string{
				"STOREFRONT_CATALOG_BASE_URL": "https://c",
				"STOREFRONT_SESSION_BACKEND":  "etcd",
			},
			fields: []string{"Session.Backend"},
		},
		{
			name: "topic without project",
			env: map[string]string{
				"STOREFRONT_CATALOG_BASE_URL":    "https://c",
				"STOREFRONT_PUBSUB_REVIEW_TOPIC": "reviews",
			},
			fields: []string{"PubSub.ProjectID"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(t, tc.env)
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if got := validation.Fields(); !reflect.DeepEqual(got, tc.fields) {
				t.Fatalf("fields = %v, want %v", got, tc.fields)
			}
		})
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	var seen []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		seen = append(seen, ref)
		return "resolved-" + ref, nil
	})

	cfg, err := load(t, map[string]string{
		"STOREFRONT_CATALOG_BASE_URL": "https://c",
		"STOREFRONT_CATALOG_API_KEY":  "sm://catalog_key",
		"STOREFRONT_REVIEWS_API_KEY":  "plain",
	}, WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Catalog.APIKey != "resolved-secret://catalog_key" {
		t.Errorf("unexpected catalog key %s", cfg.Catalog.APIKey)
	}
	if cfg.Reviews.APIKey != "plain" {
		t.Errorf("plain values must pass through, got %s", cfg.Reviews.APIKey)
	}
	if len(seen) != 1 {
		t.Errorf("expected a single resolution, got %v", seen)
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	_, err := load(t, map[string]string{
		"STOREFRONT_CATALOG_BASE_URL": "https://c",
		"STOREFRONT_CATALOG_API_KEY":  "secret://catalog_key",
	})
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected resolver-not-configured cause, got %v", err)
	}
}

func TestEnvironmentValuesLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("STOREFRONT_SERVER_PORT=7000\nLOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	values, err := EnvironmentValues(WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{"LOG_LEVEL": "warn"}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if values["STOREFRONT_SERVER_PORT"] != "7000" {
		t.Errorf("expected dotenv value, got %q", values["STOREFRONT_SERVER_PORT"])
	}
	if values["LOG_LEVEL"] != "warn" {
		t.Errorf("explicit map should win, got %q", values["LOG_LEVEL"])
	}

	if _, err := EnvironmentValues(WithEnvFile(filepath.Join(dir, "missing.env")), WithoutSystemEnv()); err != nil {
		t.Errorf("missing dotenv file should be ignored, got %v", err)
	}
}
