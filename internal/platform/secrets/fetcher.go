// Package secrets resolves secret:// configuration references for the storefront. Values come
// from Google Secret Manager when a project is configured, and from a local dotenv file
// (.secrets.local) otherwise or when Secret Manager refuses the call.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	accessTimeout       = 10 * time.Second
)

// errNoValue means a source does not hold the secret and the next source should be asked.
var errNoValue = errors.New("secrets: no value")

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves references and remembers every value for the life of the process.
type Fetcher struct {
	logger  *zap.Logger
	project string
	remote  secretManagerClient
	closer  func() error
	local   *localFile
	lookups metric.Int64Counter

	mu     sync.RWMutex
	values map[string]string
}

type settings struct {
	logger    *zap.Logger
	project   string
	localPath string
	client    secretManagerClient
}

type Option func(*settings)

func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithProject sets the project for references that do not carry ?project=.
func WithProject(projectID string) Option {
	return func(s *settings) { s.project = strings.TrimSpace(projectID) }
}

// WithFallbackFile points the local source at path. An empty path turns it off.
func WithFallbackFile(path string) Option {
	return func(s *settings) { s.localPath = strings.TrimSpace(path) }
}

func WithSecretManagerClient(client secretManagerClient) Option {
	return func(s *settings) { s.client = client }
}

// NewFetcher never fails on an unreachable Secret Manager; it logs and keeps the local source.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	s := settings{localPath: defaultFallbackPath, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	meter := otel.GetMeterProvider().Meter("github.com/hanko-field/storefront/internal/platform/secrets")
	lookups, err := meter.Int64Counter("storefront.secrets.lookups",
		metric.WithDescription("Secret resolutions by the source that answered"))
	if err != nil {
		s.logger.Warn("secrets: lookup counter unavailable", zap.Error(err))
	}

	f := &Fetcher{
		logger:  s.logger,
		project: s.project,
		remote:  s.client,
		closer:  func() error { return nil },
		local:   &localFile{path: s.localPath},
		lookups: lookups,
		values:  make(map[string]string),
	}
	if f.remote == nil && f.project != "" {
		client, err := secretmanager.NewClient(ctx)
		if err != nil {
			s.logger.Warn("secrets: secret manager unavailable, using local file only", zap.Error(err))
		} else {
			f.remote, f.closer = client, client.Close
		}
	}
	return f, nil
}

// Close releases a Secret Manager client the fetcher dialed itself.
func (f *Fetcher) Close() error { return f.closer() }

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve asks the memo, Secret Manager and the local file in that order.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	r, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	if value, ok := f.memo(r.Canonical); ok {
		f.count(ctx, "cache")
		return value, nil
	}

	value, err := f.fromSecretManager(ctx, r)
	source := "remote"
	if errors.Is(err, errNoValue) {
		value, err = f.local.lookup(f.logger, r.Secret)
		source = "fallback"
	}
	if err != nil {
		f.count(ctx, "error")
		if errors.Is(err, errNoValue) {
			return "", fmt.Errorf("secrets: no source holds %s", r.Canonical)
		}
		return "", fmt.Errorf("secrets: resolve %s: %w", r.Canonical, err)
	}

	f.mu.Lock()
	f.values[r.Canonical] = value
	f.mu.Unlock()
	f.count(ctx, source)
	return value, nil
}

func (f *Fetcher) memo(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	value, ok := f.values[key]
	return value, ok
}

// fromSecretManager returns errNoValue when there is no client or project, or when the failure
// is one the local file may cover (denied, unauthenticated, missing, unreachable).
func (f *Fetcher) fromSecretManager(ctx context.Context, r reference) (string, error) {
	project := r.Project
	if project == "" {
		project = f.project
	}
	if f.remote == nil || project == "" {
		return "", errNoValue
	}

	ctx, cancel := context.WithTimeout(ctx, accessTimeout)
	defer cancel()
	name := "projects/" + project + "/secrets/" + r.Secret + "/versions/" + r.Version
	resp, err := f.remote.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	switch status.Code(err) {
	case codes.OK:
	case codes.PermissionDenied, codes.Unauthenticated, codes.NotFound, codes.Unavailable, codes.DeadlineExceeded:
		f.logger.Debug("secrets: secret manager declined, trying local file", zap.String("secret", name), zap.Error(err))
		return "", errNoValue
	default:
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) count(ctx context.Context, source string) {
	if f.lookups != nil {
		f.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	}
}

// localFile is a NAME=value file read once on first use.
type localFile struct {
	path   string
	once   sync.Once
	values map[string]string
}

func (l *localFile) lookup(logger *zap.Logger, secret string) (string, error) {
	l.once.Do(func() {
		if l.path == "" {
			return
		}
		values, err := godotenv.Read(l.path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("secrets: local file unreadable", zap.String("path", l.path), zap.Error(err))
		}
		l.values = values
	})
	if value, ok := l.values[secret]; ok {
		return value, nil
	}
	return "", errNoValue
}

type reference struct {
	Canonical string
	Secret    string
	Version   string
	Project   string
}

// parseReference accepts secret://name[?version=N&project=P] and the sm:// shorthand.
func parseReference(raw string) (reference, error) {
	raw = strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(raw, "sm://"); ok {
		raw = "secret://" + rest
	}
	u, err := url.Parse(raw)
	switch {
	case raw == "":
		return reference{}, errors.New("secrets: empty reference")
	case err != nil:
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	case u.Scheme != "secret":
		return reference{}, fmt.Errorf("secrets: %q is not a secret:// reference", raw)
	}

	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: %q names no secret", raw)
	}
	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = "latest"
	}
	return reference{
		Canonical: "secret://" + name + "#" + version,
		Secret:    name,
		Version:   version,
		Project:   strings.TrimSpace(query.Get("project")),
	}, nil
}
