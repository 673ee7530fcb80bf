package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_AUTH_JWT_SECRET": "dev-secret",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Store.Backend != StoreMemory {
		t.Errorf("expected memory store, got %s", cfg.Store.Backend)
	}
	if cfg.Events.Backend != EventsLog {
		t.Errorf("expected log events, got %s", cfg.Events.Backend)
	}
	if cfg.Statistics.Location != time.UTC {
		t.Errorf("expected UTC location, got %v", cfg.Statistics.Location)
	}
	if !cfg.Statistics.DefaultCOGSRatio.Equal(decimal.RequireFromString("0.55")) {
		t.Errorf("unexpected default cogs ratio %s", cfg.Statistics.DefaultCOGSRatio)
	}
	if !cfg.Statistics.VIPMinSpend.Equal(decimal.NewFromInt(10_000_000)) {
		t.Errorf("unexpected vip spend %s", cfg.Statistics.VIPMinSpend)
	}
	if cfg.Statistics.VIPMinOrders != 10 {
		t.Errorf("unexpected vip orders %d", cfg.Statistics.VIPMinOrders)
	}
	if cfg.Statistics.TopProductsDays != 30 || cfg.Statistics.TopCustomersDays != 90 {
		t.Errorf("unexpected ranking windows %d/%d", cfg.Statistics.TopProductsDays, cfg.Statistics.TopCustomersDays)
	}
	if !cfg.Statistics.PriceBands {
		t.Errorf("expected price bands enabled by default")
	}
	if len(cfg.Statistics.CategoryCOGSRatios) != 0 {
		t.Errorf("expected no category overrides, got %v", cfg.Statistics.CategoryCOGSRatios)
	}
	if cfg.AutoComplete.Interval != 6*time.Hour || cfg.AutoComplete.DeliveredAge != 72*time.Hour {
		t.Errorf("unexpected auto-complete schedule %s/%s", cfg.AutoComplete.Interval, cfg.AutoComplete.DeliveredAge)
	}
	if len(cfg.Events.KafkaBrokers) != 0 {
		t.Errorf("expected no brokers, got %v", cfg.Events.KafkaBrokers)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                "9090",
		"API_SERVER_IDLE_TIMEOUT":        "2m",
		"API_STORE_BACKEND":              "Postgres",
		"API_STORE_POSTGRES_DSN":         "sm://db/dsn",
		"API_STORE_AUTO_MIGRATE":         "off",
		"API_REDIS_ADDR":                 "localhost:6379",
		"API_REDIS_PASSWORD":             "secret://redis/password",
		"API_EVENTS_BACKEND":             "kafka",
		"API_EVENTS_KAFKA_BROKERS":       "k1:9092, k2:9092",
		"API_AUTH_JWT_SECRET":            "secret://auth/jwt",
		"API_STATS_TIMEZONE":             "Asia/Ho_Chi_Minh",
		"API_STATS_COGS_CATEGORY_RATIOS": "Books=0.4, 3=0.7",
		"API_STATS_VIP_MIN_ORDERS":       "3",
		"API_STATS_CACHE_TTL":            "1m",
		"API_AUTOCOMPLETE_ENABLED":       "no",
	}

	secrets := map[string]string{
		"secret://db/dsn":         "postgres://orders",
		"secret://redis/password": "redis-pass",
		"secret://auth/jwt":       "jwt-secret",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Store.Backend != StorePostgres || cfg.Store.PostgresDSN != "postgres://orders" {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Store.AutoMigrate {
		t.Errorf("expected auto migrate disabled")
	}
	if cfg.Redis.Password != "redis-pass" {
		t.Errorf("expected resolved redis password, got %s", cfg.Redis.Password)
	}
	if !slices.Equal(cfg.Events.KafkaBrokers, []string{"k1:9092", "k2:9092"}) {
		t.Errorf("unexpected brokers %v", cfg.Events.KafkaBrokers)
	}
	if cfg.Auth.JWTSecret != "jwt-secret" {
		t.Errorf("expected resolved jwt secret, got %s", cfg.Auth.JWTSecret)
	}
	if cfg.Statistics.Location.String() != "Asia/Ho_Chi_Minh" {
		t.Errorf("unexpected location %v", cfg.Statistics.Location)
	}
	if got := cfg.Statistics.CategoryCOGSRatios["books"]; !got.Equal(decimal.RequireFromString("0.4")) {
		t.Errorf("expected books ratio 0.4, got %s", got)
	}
	if got := cfg.Statistics.CategoryCOGSRatios["3"]; !got.Equal(decimal.RequireFromString("0.7")) {
		t.Errorf("expected category 3 ratio 0.7, got %s", got)
	}
	if cfg.Statistics.VIPMinOrders != 3 {
		t.Errorf("unexpected vip orders %d", cfg.Statistics.VIPMinOrders)
	}
	if cfg.Statistics.CacheTTL != time.Minute {
		t.Errorf("unexpected cache ttl %s", cfg.Statistics.CacheTTL)
	}
	if cfg.AutoComplete.Enabled {
		t.Errorf("expected auto-complete disabled")
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nexport API_SERVER_PORT=7070\nAPI_AUTH_JWT_SECRET=\"dot-secret\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv(), WithEnvMap(map[string]string{
		"API_SERVER_PORT": "6060",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "6060" {
		t.Errorf("expected env map to win over dotenv, got %s", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "dot-secret" {
		t.Errorf("expected secret from dotenv, got %s", cfg.Auth.JWTSecret)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"API_STORE_BACKEND":            "postgres",
		"API_EVENTS_BACKEND":           "rabbitmq",
		"API_STATS_TIMEZONE":           "Mars/Olympus",
		"API_STATS_COGS_DEFAULT_RATIO": "1.5",
		"API_STATS_VIP_MIN_SPEND":      "lots",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	fields := validation.Fields()
	for _, want := range []string{
		"Store.PostgresDSN",
		"Events.RabbitURL",
		"Auth.JWTSecret",
		"Statistics.TimeZone",
		"Statistics.DefaultCOGSRatio",
		"Statistics.VIPMinSpend",
	} {
		if !slices.Contains(fields, want) {
			t.Errorf("expected %s in %v", want, fields)
		}
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := map[string]string{"API_AUTH_JWT_SECRET": "secret://auth/jwt"}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected secret error, got %v", err)
	}
	if secretErr.Ref != "secret://auth/jwt" {
		t.Errorf("unexpected ref %s", secretErr.Ref)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Errorf("expected resolver-not-configured cause, got %v", secretErr.Err)
	}
}

func TestEnvironmentValuesPrecedence(t *testing.T) {
	t.Setenv("API_SERVER_PORT", "5050")
	values, err := EnvironmentValues(WithEnvFile(""), WithEnvMap(map[string]string{"API_REDIS_DB": "2"}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if values["API_SERVER_PORT"] != "5050" {
		t.Errorf("expected system env value, got %q", values["API_SERVER_PORT"])
	}
	if values["API_REDIS_DB"] != "2" {
		t.Errorf("expected env map value, got %q", values["API_REDIS_DB"])
	}
}
