package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultUpstreamTimeout  = 8 * time.Second
	defaultSessionBackend   = BackendMemory
	defaultSessionNamespace = "storefront"
	defaultSessionTTL       = 30 * 24 * time.Hour
	defaultSessionIdle      = 30 * time.Minute
	defaultFirestoreColl    = "storefrontSessions"
	defaultLogLevel         = "info"
)

// Session storage backends.
const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Catalog   UpstreamConfig
	Reviews   UpstreamConfig
	Session   SessionConfig
	Redis     RedisConfig
	Firestore FirestoreConfig
	PubSub    PubSubConfig
	Secrets   SecretsConfig
	LogLevel  string
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// UpstreamConfig points at an external HTTP service.
type UpstreamConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SessionConfig selects where session slots are persisted.
type SessionConfig struct {
	Backend   string
	Namespace string
	TTL       time.Duration

	// IdleTimeout is how long an unused session stays in memory before it is reloaded from storage.
	IdleTimeout time.Duration
}

// RedisConfig stores Redis connection settings for the redis session backend.
type RedisConfig struct {
	URL string
	DB  int
}

// FirestoreConfig stores database parameters for the firestore session backend.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Collection   string
}

// PubSubConfig configures review event publishing. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID   string
	ReviewTopic string
}

// SecretsConfig configures secret:// resolution.
type SecretsConfig struct {
	ProjectID string
}

// SecretResolver turns a secret:// reference into its value. secrets.Fetcher implements it.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists every setting that is missing or out of range, by field path.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return "config: invalid storefront settings: " + strings.Join(e.fields, ", ")
}

func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError wraps a failed secret:// lookup with the reference that failed.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return "config: resolve " + e.Ref + ": " + e.Err.Error()
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("no secret resolver configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the dotenv file path. An empty path disables dotenv loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap layers explicit values over dotenv and OS environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// EnvironmentValues returns the effective key/value map (dotenv < OS env < explicit map).
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	return environmentValues(options)
}

func environmentValues(options loaderOptions) (map[string]string, error) {
	values := make(map[string]string)

	if options.envFile != "" {
		dotEnv, err := godotenv.Read(options.envFile)
		switch {
		case err == nil:
			for k, v := range dotEnv {
				values[k] = v
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: unable to read %s: %w", options.envFile, err)
		}
	}

	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}

	for k, v := range options.envMap {
		values[k] = v
	}
	return values, nil
}

// Load resolves configuration from the environment, resolving secret references and validating the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	values, err := environmentValues(options)
	if err != nil {
		return Config{}, err
	}
	vars := env(values)

	cfg := Config{
		Server: ServerConfig{
			Port:         vars.str("STOREFRONT_SERVER_PORT", defaultPort),
			ReadTimeout:  vars.duration("STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: vars.duration("STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  vars.duration("STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Catalog: UpstreamConfig{
			BaseURL: vars.str("STOREFRONT_CATALOG_BASE_URL", ""),
			APIKey:  vars.str("STOREFRONT_CATALOG_API_KEY", ""),
			Timeout: vars.duration("STOREFRONT_CATALOG_TIMEOUT", defaultUpstreamTimeout),
		},
		Reviews: UpstreamConfig{
			BaseURL: vars.str("STOREFRONT_REVIEWS_BASE_URL", ""),
			APIKey:  vars.str("STOREFRONT_REVIEWS_API_KEY", ""),
			Timeout: vars.duration("STOREFRONT_REVIEWS_TIMEOUT", defaultUpstreamTimeout),
		},
		Session: SessionConfig{
			Backend:     strings.ToLower(vars.str("STOREFRONT_SESSION_BACKEND", defaultSessionBackend)),
			Namespace:   vars.str("STOREFRONT_SESSION_NAMESPACE", defaultSessionNamespace),
			TTL:         vars.duration("STOREFRONT_SESSION_TTL", defaultSessionTTL),
			IdleTimeout: vars.duration("STOREFRONT_SESSION_IDLE_TIMEOUT", defaultSessionIdle),
		},
		Redis: RedisConfig{
			URL: vars.str("STOREFRONT_REDIS_URL", ""),
			DB:  vars.integer("STOREFRONT_REDIS_DB", 0),
		},
		Firestore: FirestoreConfig{
			ProjectID:    vars.str("STOREFRONT_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: vars.str("STOREFRONT_FIRESTORE_EMULATOR_HOST", ""),
			Collection:   vars.str("STOREFRONT_FIRESTORE_COLLECTION", defaultFirestoreColl),
		},
		PubSub: PubSubConfig{
			ProjectID:   vars.str("STOREFRONT_PUBSUB_PROJECT_ID", ""),
			ReviewTopic: vars.str("STOREFRONT_PUBSUB_REVIEW_TOPIC", ""),
		},
		Secrets: SecretsConfig{
			ProjectID: vars.str("STOREFRONT_SECRETS_PROJECT_ID", ""),
		},
		LogLevel: vars.str("LOG_LEVEL", defaultLogLevel),
	}

	// Reviews are served by the catalog backend unless pointed elsewhere.
	if cfg.Reviews.BaseURL == "" {
		cfg.Reviews.BaseURL = cfg.Catalog.BaseURL
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	secretFields := []*string{
		&cfg.Catalog.APIKey,
		&cfg.Reviews.APIKey,
		&cfg.Redis.URL,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	ref, ok := secretReference(value)
	switch {
	case !ok:
		return value, nil
	case resolver == nil:
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Catalog.BaseURL == "" {
		missing = append(missing, "Catalog.BaseURL")
	}
	if cfg.Session.TTL < 0 {
		missing = append(missing, "Session.TTL")
	}
	switch cfg.Session.Backend {
	case BackendMemory:
	case BackendRedis:
		if cfg.Redis.URL == "" {
			missing = append(missing, "Redis.URL")
		}
		if cfg.Redis.DB < 0 || cfg.Redis.DB > 15 {
			missing = append(missing, "Redis.DB")
		}
	case BackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
		if cfg.Firestore.Collection == "" {
			missing = append(missing, "Firestore.Collection")
		}
	default:
		missing = append(missing, "Session.Backend")
	}
	if cfg.PubSub.ReviewTopic != "" && cfg.PubSub.ProjectID == "" {
		missing = append(missing, "PubSub.ProjectID")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

// secretReference normalizes the sm:// shorthand to secret://.
func secretReference(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(value, "sm://"); ok {
		return "secret://" + rest, true
	}
	return value, strings.HasPrefix(value, "secret://")
}

// env is the merged key/value view Load reads from. Blank values count as unset.
type env map[string]string

func (e env) str(key, fallback string) string {
	if value := strings.TrimSpace(e[key]); value != "" {
		return value
	}
	return fallback
}

// duration falls back on unparseable input rather than failing the whole load.
func (e env) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(e.str(key, "")); err == nil {
		return d
	}
	return fallback
}

func (e env) integer(key string, fallback int) int {
	if n, err := strconv.Atoi(e.str(key, "")); err == nil {
		return n
	}
	return fallback
}
