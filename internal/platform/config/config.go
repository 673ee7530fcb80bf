package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultBodyLimit           = 64 * 1024
	defaultStoreBackend        = "memory"
	defaultMaxIdleConns        = 10
	defaultMaxOpenConns        = 50
	defaultConnMaxLifetime     = time.Hour
	defaultRedisKeyPrefix      = "orders:stats"
	defaultEventsBackend       = "log"
	defaultEventsTopic         = "order-events"
	defaultRabbitExchange      = "orders"
	defaultTimeZone            = "UTC"
	defaultVIPMinSpend         = "10000000"
	defaultVIPMinOrders        = 10
	defaultCOGSRatio           = "0.55"
	defaultStatisticsCacheTTL  = 5 * time.Minute
	defaultTopProductsWindow   = 30
	defaultTopCustomersWindow  = 90
	defaultRankingLimit        = 10
	defaultAutoCompleteEvery   = 6 * time.Hour
	defaultAutoCompleteAge     = 72 * time.Hour
	defaultAutoCompleteBatch   = 100
	defaultPlatformRate        = "0.03"
	defaultPaymentRate         = "0.025"
	defaultMarketingRate       = "0.07"
	defaultPackagingRate       = "0.015"
	defaultCustomerServiceRate = "0.02"
	defaultShippingPerOrder    = "30000"
)

// Store backends.
const (
	StoreMemory    = "memory"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
)

// Event backends.
const (
	EventsLog      = "log"
	EventsKafka    = "kafka"
	EventsRabbitMQ = "rabbitmq"
	EventsPubSub   = "pubsub"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server       ServerConfig
	Store        StoreConfig
	Firestore    FirestoreConfig
	Redis        RedisConfig
	Events       EventsConfig
	Auth         AuthConfig
	Statistics   StatisticsConfig
	AutoComplete AutoCompleteConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	BodyLimit    int64
}

// StoreConfig selects and tunes the order repository backend.
type StoreConfig struct {
	Backend         string
	PostgresDSN     string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
	Debug           bool
}

// FirestoreConfig stores document database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// RedisConfig enables the shared statistics cache. An empty Addr keeps the cache in process.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// EventsConfig selects where order status events are published.
type EventsConfig struct {
	Backend        string
	Topic          string
	KafkaBrokers   []string
	RabbitURL      string
	RabbitExchange string
	PubSubProject  string
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

// StatisticsConfig tunes the analytics endpoints.
type StatisticsConfig struct {
	TimeZone            string
	Location            *time.Location
	VIPMinSpend         decimal.Decimal
	VIPMinOrders        int
	DefaultCOGSRatio    decimal.Decimal
	CategoryCOGSRatios  map[string]decimal.Decimal
	PriceBands          bool
	PlatformRate        decimal.Decimal
	PaymentRate         decimal.Decimal
	MarketingRate       decimal.Decimal
	PackagingRate       decimal.Decimal
	CustomerServiceRate decimal.Decimal
	ShippingPerOrder    decimal.Decimal
	CacheTTL            time.Duration
	TopProductsDays     int
	TopCustomersDays    int
	DefaultLimit        int
}

// AutoCompleteConfig controls the job that closes delivered orders.
type AutoCompleteConfig struct {
	Enabled      bool
	Interval     time.Duration
	DeliveredAge time.Duration
	BatchSize    int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that take precedence over the system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// EnvironmentValues returns the effective environment after applying the same
// precedence as Load (dotenv < OS env < explicit env map). Callers use it to
// build dependencies, such as the secret fetcher, before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotEnvValues))
	for key, value := range dotEnvValues {
		values[key] = value
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
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration by combining defaults, .env
// overrides, environment variables and Secret Manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	values, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}

	var invalid []string
	decimalField := func(name, key, fallback string) decimal.Decimal {
		raw := stringWithDefault(lookup, key, fallback)
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || d.IsNegative() {
			invalid = append(invalid, name)
			return decimal.Zero
		}
		return d
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			BodyLimit:    int64(intWithDefault(lookup, "API_SERVER_BODY_LIMIT", defaultBodyLimit)),
		},
		Store: StoreConfig{
			Backend:         strings.ToLower(stringWithDefault(lookup, "API_STORE_BACKEND", defaultStoreBackend)),
			PostgresDSN:     stringWithDefault(lookup, "API_STORE_POSTGRES_DSN", ""),
			MaxIdleConns:    intWithDefault(lookup, "API_STORE_MAX_IDLE_CONNS", defaultMaxIdleConns),
			MaxOpenConns:    intWithDefault(lookup, "API_STORE_MAX_OPEN_CONNS", defaultMaxOpenConns),
			ConnMaxLifetime: durationWithDefault(lookup, "API_STORE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
			AutoMigrate:     boolWithDefault(lookup, "API_STORE_AUTO_MIGRATE", true),
			Debug:           boolWithDefault(lookup, "API_STORE_DEBUG", false),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Redis: RedisConfig{
			Addr:      stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password:  stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:        intWithDefault(lookup, "API_REDIS_DB", 0),
			KeyPrefix: stringWithDefault(lookup, "API_REDIS_KEY_PREFIX", defaultRedisKeyPrefix),
		},
		Events: EventsConfig{
			Backend:        strings.ToLower(stringWithDefault(lookup, "API_EVENTS_BACKEND", defaultEventsBackend)),
			Topic:          stringWithDefault(lookup, "API_EVENTS_TOPIC", defaultEventsTopic),
			KafkaBrokers:   csvWithDefault(lookup, "API_EVENTS_KAFKA_BROKERS"),
			RabbitURL:      stringWithDefault(lookup, "API_EVENTS_RABBITMQ_URL", ""),
			RabbitExchange: stringWithDefault(lookup, "API_EVENTS_RABBITMQ_EXCHANGE", defaultRabbitExchange),
			PubSubProject:  stringWithDefault(lookup, "API_EVENTS_PUBSUB_PROJECT_ID", ""),
		},
		Auth: AuthConfig{
			JWTSecret: stringWithDefault(lookup, "API_AUTH_JWT_SECRET", ""),
			Issuer:    stringWithDefault(lookup, "API_AUTH_JWT_ISSUER", ""),
			Audience:  stringWithDefault(lookup, "API_AUTH_JWT_AUDIENCE", ""),
		},
		Statistics: StatisticsConfig{
			TimeZone:            stringWithDefault(lookup, "API_STATS_TIMEZONE", defaultTimeZone),
			VIPMinSpend:         decimalField("Statistics.VIPMinSpend", "API_STATS_VIP_MIN_SPEND", defaultVIPMinSpend),
			VIPMinOrders:        intWithDefault(lookup, "API_STATS_VIP_MIN_ORDERS", defaultVIPMinOrders),
			DefaultCOGSRatio:    decimalField("Statistics.DefaultCOGSRatio", "API_STATS_COGS_DEFAULT_RATIO", defaultCOGSRatio),
			PriceBands:          boolWithDefault(lookup, "API_STATS_COGS_PRICE_BANDS", true),
			PlatformRate:        decimalField("Statistics.PlatformRate", "API_STATS_EXPENSE_PLATFORM_RATE", defaultPlatformRate),
			PaymentRate:         decimalField("Statistics.PaymentRate", "API_STATS_EXPENSE_PAYMENT_RATE", defaultPaymentRate),
			MarketingRate:       decimalField("Statistics.MarketingRate", "API_STATS_EXPENSE_MARKETING_RATE", defaultMarketingRate),
			PackagingRate:       decimalField("Statistics.PackagingRate", "API_STATS_EXPENSE_PACKAGING_RATE", defaultPackagingRate),
			CustomerServiceRate: decimalField("Statistics.CustomerServiceRate", "API_STATS_EXPENSE_SERVICE_RATE", defaultCustomerServiceRate),
			ShippingPerOrder:    decimalField("Statistics.ShippingPerOrder", "API_STATS_EXPENSE_SHIPPING_PER_ORDER", defaultShippingPerOrder),
			CacheTTL:            durationWithDefault(lookup, "API_STATS_CACHE_TTL", defaultStatisticsCacheTTL),
			TopProductsDays:     intWithDefault(lookup, "API_STATS_TOP_PRODUCTS_DAYS", defaultTopProductsWindow),
			TopCustomersDays:    intWithDefault(lookup, "API_STATS_TOP_CUSTOMERS_DAYS", defaultTopCustomersWindow),
			DefaultLimit:        intWithDefault(lookup, "API_STATS_DEFAULT_LIMIT", defaultRankingLimit),
		},
		AutoComplete: AutoCompleteConfig{
			Enabled:      boolWithDefault(lookup, "API_AUTOCOMPLETE_ENABLED", true),
			Interval:     durationWithDefault(lookup, "API_AUTOCOMPLETE_INTERVAL", defaultAutoCompleteEvery),
			DeliveredAge: durationWithDefault(lookup, "API_AUTOCOMPLETE_DELIVERED_AGE", defaultAutoCompleteAge),
			BatchSize:    intWithDefault(lookup, "API_AUTOCOMPLETE_BATCH_SIZE", defaultAutoCompleteBatch),
		},
	}

	cfg.Statistics.CategoryCOGSRatios = make(map[string]decimal.Decimal)
	for category, raw := range mapWithDefault(lookup, "API_STATS_COGS_CATEGORY_RATIOS") {
		ratio, err := decimal.NewFromString(raw)
		if err != nil || ratio.IsNegative() || ratio.GreaterThan(decimal.NewFromInt(1)) {
			invalid = append(invalid, fmt.Sprintf("Statistics.CategoryCOGSRatios[%s]", category))
			continue
		}
		cfg.Statistics.CategoryCOGSRatios[category] = ratio
	}

	if loc, err := time.LoadLocation(cfg.Statistics.TimeZone); err == nil {
		cfg.Statistics.Location = loc
	} else {
		invalid = append(invalid, "Statistics.TimeZone")
	}

	if cfg.Events.PubSubProject == "" {
		cfg.Events.PubSubProject = cfg.Firestore.ProjectID
	}

	secretFields := []*string{
		&cfg.Store.PostgresDSN,
		&cfg.Redis.Password,
		&cfg.Events.RabbitURL,
		&cfg.Auth.JWTSecret,
	}
	resolver := options.secret
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, resolver)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Server.BodyLimit <= 0 {
		missing = append(missing, "Server.BodyLimit")
	}

	switch cfg.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(cfg.Store.PostgresDSN) == "" {
			missing = append(missing, "Store.PostgresDSN")
		}
	case StoreFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	default:
		missing = append(missing, "Store.Backend")
	}

	switch cfg.Events.Backend {
	case EventsLog:
	case EventsKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			missing = append(missing, "Events.KafkaBrokers")
		}
	case EventsRabbitMQ:
		if cfg.Events.RabbitURL == "" {
			missing = append(missing, "Events.RabbitURL")
		}
	case EventsPubSub:
		if cfg.Events.PubSubProject == "" {
			missing = append(missing, "Events.PubSubProject")
		}
	default:
		missing = append(missing, "Events.Backend")
	}
	if cfg.Events.Backend != EventsLog && strings.TrimSpace(cfg.Events.Topic) == "" {
		missing = append(missing, "Events.Topic")
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		missing = append(missing, "Auth.JWTSecret")
	}

	if cfg.Statistics.DefaultCOGSRatio.GreaterThan(decimal.NewFromInt(1)) {
		missing = append(missing, "Statistics.DefaultCOGSRatio")
	}
	if cfg.Statistics.CacheTTL < 0 {
		missing = append(missing, "Statistics.CacheTTL")
	}
	if cfg.Statistics.TopProductsDays <= 0 {
		missing = append(missing, "Statistics.TopProductsDays")
	}
	if cfg.Statistics.TopCustomersDays <= 0 {
		missing = append(missing, "Statistics.TopCustomersDays")
	}
	if cfg.Statistics.DefaultLimit <= 0 {
		missing = append(missing, "Statistics.DefaultLimit")
	}

	if cfg.AutoComplete.Enabled {
		if cfg.AutoComplete.Interval <= 0 {
			missing = append(missing, "AutoComplete.Interval")
		}
		if cfg.AutoComplete.DeliveredAge <= 0 {
			missing = append(missing, "AutoComplete.DeliveredAge")
		}
		if cfg.AutoComplete.BatchSize <= 0 {
			missing = append(missing, "AutoComplete.BatchSize")
		}
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// mapWithDefault parses "key=value,key=value" pairs. Keys are lower-cased.
func mapWithDefault(lookup func(string) (string, bool), key string) map[string]string {
	values := make(map[string]string)
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return values
	}
	for _, entry := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			continue
		}
		values[name] = value
	}
	return values
}
