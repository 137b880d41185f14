package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultEnvironment          = "local"
	defaultStorageDriver        = StorageDriverFirestore
	defaultPostgresMaxConns     = 10
	defaultNotificationDriver   = NotificationDriverLog
	defaultNotificationTopic    = "order-notifications"
	defaultAMQPExchange         = "notifications_fanout"
	defaultNotificationRate     = 20.0
	defaultNotificationBurst    = 40
	defaultNotificationLocale   = "en"
	defaultSideEffectWorkers    = 4
	defaultSideEffectQueueSize  = 256
	defaultSideEffectAttempts   = 3
	defaultSideEffectBackoff    = 200 * time.Millisecond
	defaultSideEffectMaxBackoff = 5 * time.Second
	defaultSideEffectTimeout    = 10 * time.Second
	defaultDispatchGuardDriver  = DispatchGuardDriverMemory
	defaultDispatchGuardTTL     = 72 * time.Hour
)

// Storage drivers accepted by API_STORAGE_DRIVER.
const (
	StorageDriverFirestore = "firestore"
	StorageDriverPostgres  = "postgres"
	StorageDriverMemory    = "memory"
)

// Notification transports accepted by API_NOTIFICATIONS_DRIVER.
const (
	NotificationDriverPubSub = "pubsub"
	NotificationDriverAMQP   = "amqp"
	NotificationDriverLog    = "log"
)

// Dispatch guard backends accepted by API_DISPATCH_GUARD_DRIVER.
const (
	DispatchGuardDriverMemory = "memory"
	DispatchGuardDriverRedis  = "redis"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment   string
	Server        ServerConfig
	Firestore     FirestoreConfig
	Storage       StorageConfig
	Postgres      PostgresConfig
	Notifications NotificationConfig
	SideEffects   SideEffectConfig
	DispatchGuard DispatchGuardConfig
	Features      FeatureFlags
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver       string
	FixturesFile string
}

// PostgresConfig configures the pgx connection pool.
type PostgresConfig struct {
	DSN      string
	MaxConns int
}

// NotificationConfig selects and tunes the notification channel.
type NotificationConfig struct {
	Driver        string
	ProjectID     string
	Topic         string
	AMQPURL       string
	AMQPExchange  string
	RatePerSecond float64
	Burst         int
	DefaultLocale string

	// AdminRecipients receive admin notifications when a business lists no admin emails.
	AdminRecipients []string
}

// SideEffectConfig bounds the post-commit task runner.
type SideEffectConfig struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

// DispatchGuardConfig configures de-duplication of published notifications.
type DispatchGuardConfig struct {
	Driver        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// FeatureFlags are the defaults applied when a business has no settings document.
type FeatureFlags struct {
	AffiliateProgram   bool
	DeliveryManagement bool
}

// SecretResolver resolves secret:// references.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists the configuration fields that are missing or invalid. Unparsable
// values are reported under their environment key.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return "config validation failed: missing or invalid fields [" + strings.Join(e.fields, ", ") + "]"
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string { return slices.Clone(e.fields) }

// SecretError wraps a failed secret lookup.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError reports required secrets that resolved to an empty value. Its message only
// carries redacted names.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return "missing required secrets [" + strings.Join(e.RedactedNames(), ", ") + "]"
}

// Names returns the sorted config field names of the missing secrets.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	return slices.Clone(e.names)
}

// RedactedNames returns a stable hash of each missing name, sorted.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.names))
	for i, name := range e.names {
		out[i] = redactSecretName(name)
	}
	slices.Sort(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load and EnvironmentValues.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

func newLoaderOptions(opts []Option) loaderOptions {
	o := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithEnvFile overrides the dotenv path. An empty path disables the file.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap layers values over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver for secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks config fields such as "Postgres.DSN" or "Notifications.AMQPURL" as
// mandatory once resolved.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// WithPanicOnMissingSecrets makes Load panic with a *MissingSecretsError instead of returning it.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) { o.panicOnMissingSecrets = true }
}

// EnvironmentValues returns the merged environment Load would see (dotenv, then the process
// environment, then WithEnvMap). main uses it to build the secret resolver before Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	src, err := openSources(newLoaderOptions(opts))
	if err != nil {
		return nil, err
	}
	return src.merged(), nil
}

// Load reads the API_* environment into a Config, resolves secret references and validates
// the selected drivers.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	src, err := openSources(options)
	if err != nil {
		return Config{}, err
	}
	env := &envReader{src: src}

	cfg := Config{
		Environment: env.Lower("API_ENVIRONMENT", defaultEnvironment),
		Server: ServerConfig{
			Port:         env.String("API_SERVER_PORT", defaultPort),
			ReadTimeout:  env.Duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.Duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.Duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.String("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.String("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			Driver:       env.Lower("API_STORAGE_DRIVER", defaultStorageDriver),
			FixturesFile: env.String("API_STORAGE_FIXTURES_FILE", ""),
		},
		Postgres: PostgresConfig{
			DSN:      env.String("API_POSTGRES_DSN", ""),
			MaxConns: env.Int("API_POSTGRES_MAX_CONNS", defaultPostgresMaxConns),
		},
		Notifications: NotificationConfig{
			Driver:          env.Lower("API_NOTIFICATIONS_DRIVER", defaultNotificationDriver),
			ProjectID:       env.String("API_NOTIFICATIONS_PROJECT_ID", ""),
			Topic:           env.String("API_NOTIFICATIONS_TOPIC", defaultNotificationTopic),
			AMQPURL:         env.String("API_NOTIFICATIONS_AMQP_URL", ""),
			AMQPExchange:    env.String("API_NOTIFICATIONS_AMQP_EXCHANGE", defaultAMQPExchange),
			RatePerSecond:   env.Float("API_NOTIFICATIONS_RATE_PER_SEC", defaultNotificationRate),
			Burst:           env.Int("API_NOTIFICATIONS_BURST", defaultNotificationBurst),
			DefaultLocale:   env.String("API_NOTIFICATIONS_DEFAULT_LOCALE", defaultNotificationLocale),
			AdminRecipients: env.List("API_NOTIFICATIONS_ADMIN_RECIPIENTS"),
		},
		SideEffects: SideEffectConfig{
			Workers:        env.Int("API_SIDE_EFFECTS_WORKERS", defaultSideEffectWorkers),
			QueueSize:      env.Int("API_SIDE_EFFECTS_QUEUE_SIZE", defaultSideEffectQueueSize),
			MaxAttempts:    env.Int("API_SIDE_EFFECTS_MAX_ATTEMPTS", defaultSideEffectAttempts),
			InitialBackoff: env.Duration("API_SIDE_EFFECTS_INITIAL_BACKOFF", defaultSideEffectBackoff),
			MaxBackoff:     env.Duration("API_SIDE_EFFECTS_MAX_BACKOFF", defaultSideEffectMaxBackoff),
			AttemptTimeout: env.Duration("API_SIDE_EFFECTS_ATTEMPT_TIMEOUT", defaultSideEffectTimeout),
		},
		DispatchGuard: DispatchGuardConfig{
			Driver:        env.Lower("API_DISPATCH_GUARD_DRIVER", defaultDispatchGuardDriver),
			RedisAddr:     env.String("API_DISPATCH_GUARD_REDIS_ADDR", ""),
			RedisPassword: env.String("API_DISPATCH_GUARD_REDIS_PASSWORD", ""),
			RedisDB:       env.Int("API_DISPATCH_GUARD_REDIS_DB", 0),
			TTL:           env.Duration("API_DISPATCH_GUARD_TTL", defaultDispatchGuardTTL),
		},
		Features: FeatureFlags{
			AffiliateProgram:   env.Bool("API_FEATURE_AFFILIATE_PROGRAM", false),
			DeliveryManagement: env.Bool("API_FEATURE_DELIVERY_MANAGEMENT", false),
		},
	}
	if cfg.Notifications.ProjectID == "" {
		cfg.Notifications.ProjectID = cfg.Firestore.ProjectID
	}

	secrets := map[string]*string{
		"Postgres.DSN":                &cfg.Postgres.DSN,
		"Notifications.AMQPURL":       &cfg.Notifications.AMQPURL,
		"DispatchGuard.RedisPassword": &cfg.DispatchGuard.RedisPassword,
	}
	for _, field := range secrets {
		if *field, err = resolveSecret(ctx, *field, options.secret); err != nil {
			return Config{}, err
		}
	}

	if fields := append(env.invalid, validateConfig(cfg)...); len(fields) > 0 {
		return Config{}, &ValidationError{fields: fields}
	}

	if missing := missingSecrets(options.requiredSecrets, secrets); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

// resolveSecret passes plain values through. sm:// is accepted as an alias of secret://.
func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	value = strings.TrimSpace(value)
	var ref string
	switch {
	case strings.HasPrefix(value, "secret://"):
		ref = value
	case strings.HasPrefix(value, "sm://"):
		ref = "secret://" + strings.TrimPrefix(value, "sm://")
	default:
		return value, nil
	}
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config) []string {
	var bad []string
	require := func(ok bool, field string) {
		if !ok {
			bad = append(bad, field)
		}
	}

	require(cfg.Server.Port != "", "Server.Port")

	switch cfg.Storage.Driver {
	case StorageDriverFirestore:
		require(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	case StorageDriverPostgres:
		require(cfg.Postgres.DSN != "", "Postgres.DSN")
		require(cfg.Postgres.MaxConns > 0, "Postgres.MaxConns")
	case StorageDriverMemory:
	default:
		bad = append(bad, "Storage.Driver")
	}

	n := cfg.Notifications
	switch n.Driver {
	case NotificationDriverPubSub:
		require(n.ProjectID != "", "Notifications.ProjectID")
		require(n.Topic != "", "Notifications.Topic")
	case NotificationDriverAMQP:
		require(n.AMQPURL != "", "Notifications.AMQPURL")
		require(n.AMQPExchange != "", "Notifications.AMQPExchange")
	case NotificationDriverLog:
	default:
		bad = append(bad, "Notifications.Driver")
	}
	require(n.RatePerSecond > 0, "Notifications.RatePerSecond")
	require(n.Burst > 0, "Notifications.Burst")

	se := cfg.SideEffects
	require(se.Workers > 0, "SideEffects.Workers")
	require(se.QueueSize > 0, "SideEffects.QueueSize")
	require(se.MaxAttempts > 0, "SideEffects.MaxAttempts")
	require(se.InitialBackoff > 0 && se.MaxBackoff >= se.InitialBackoff, "SideEffects.Backoff")
	require(se.AttemptTimeout > 0, "SideEffects.AttemptTimeout")

	switch cfg.DispatchGuard.Driver {
	case DispatchGuardDriverMemory:
	case DispatchGuardDriverRedis:
		require(cfg.DispatchGuard.RedisAddr != "", "DispatchGuard.RedisAddr")
	default:
		bad = append(bad, "DispatchGuard.Driver")
	}
	require(cfg.DispatchGuard.TTL > 0, "DispatchGuard.TTL")
	return bad
}

// missingSecrets checks required names against the resolved secret fields. Unknown names count
// as missing.
func missingSecrets(required []string, fields map[string]*string) *MissingSecretsError {
	var names []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" || slices.Contains(names, name) {
			continue
		}
		if field, ok := fields[name]; ok && *field != "" {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	slices.Sort(names)
	return &MissingSecretsError{names: names}
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}
