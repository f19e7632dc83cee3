package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	CORSOrigins []string
	Artifact    ArtifactConfig
	LLM         LLMConfig
	Renderer    RendererConfig
	Analytics   AnalyticsConfig
	Pipeline    PipelineConfig
	Topic       TopicConfig
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

type LLMConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	RPS      float64
	Burst    int
	Retries  int
}

// RendererConfig selects the in-process renderer worker. Kind "" or "none"
// leaves rendering to an external service.
type RendererConfig struct {
	Kind       string
	ChromePath string
}

type AnalyticsConfig struct {
	Enabled    bool
	Dataset    string
	Table      string
	SQLitePath string
}

// PipelineConfig holds the tunables that may also come from the YAML file.
type PipelineConfig struct {
	IdempotencyWindow   time.Duration `yaml:"idempotencyWindow"`
	IdempotencyLookback int           `yaml:"idempotencyLookback"`
	AcceptTimeout       time.Duration `yaml:"acceptTimeout"`
	RenderTimeout       time.Duration `yaml:"renderTimeout"`
	BundleTimeout       time.Duration `yaml:"bundleTimeout"`
	ExportTimeout       time.Duration `yaml:"exportTimeout"`
	SignedURLTTL        time.Duration `yaml:"signedUrlTtl"`
}

type TopicConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	Workers     int           `yaml:"workers"`
}

type fileConfig struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Topic    TopicConfig    `yaml:"topic"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8081", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	cfg := defaults(env)
	cfg.Port = *port
	if path := strings.TrimSpace(os.Getenv("BLUEPRINT_CONFIG")); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults(env string) Config {
	cfg := Config{
		Env: env,
		LLM: LLMConfig{Provider: "fake", RPS: 1, Burst: 1, Retries: 3},
		Analytics: AnalyticsConfig{
			Dataset: "analytics",
			Table:   "engagement_blueprints",
		},
		Pipeline: PipelineConfig{
			IdempotencyWindow:   5 * time.Minute,
			IdempotencyLookback: 5,
			AcceptTimeout:       60 * time.Second,
			RenderTimeout:       9 * time.Minute,
			BundleTimeout:       5 * time.Minute,
			ExportTimeout:       5 * time.Minute,
			SignedURLTTL:        time.Hour,
		},
		Topic: TopicConfig{MaxAttempts: 5, BaseBackoff: 500 * time.Millisecond, Workers: 4},
	}
	if strings.EqualFold(env, "local") {
		local := localConfig()
		cfg.Artifact = local.Artifact
		cfg.Renderer = local.Renderer
	} else {
		cfg.Artifact = loadArtifactConfig()
	}
	return cfg
}

// overlayFile applies the non-zero tunables of a YAML file.
func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	p := fc.Pipeline
	setDuration(&c.Pipeline.IdempotencyWindow, p.IdempotencyWindow)
	setInt(&c.Pipeline.IdempotencyLookback, p.IdempotencyLookback)
	setDuration(&c.Pipeline.AcceptTimeout, p.AcceptTimeout)
	setDuration(&c.Pipeline.RenderTimeout, p.RenderTimeout)
	setDuration(&c.Pipeline.BundleTimeout, p.BundleTimeout)
	setDuration(&c.Pipeline.ExportTimeout, p.ExportTimeout)
	setDuration(&c.Pipeline.SignedURLTTL, p.SignedURLTTL)
	setInt(&c.Topic.MaxAttempts, fc.Topic.MaxAttempts)
	setDuration(&c.Topic.BaseBackoff, fc.Topic.BaseBackoff)
	setInt(&c.Topic.Workers, fc.Topic.Workers)
	return nil
}

// applyEnv overrides the current values; environment always wins over the file.
func (c *Config) applyEnv() error {
	c.DatabaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("DATABASE_URL")), c.DatabaseURL)
	if raw := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); raw != "" {
		c.CORSOrigins = strings.Split(raw, ",")
	}

	c.LLM.Provider = strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_PROVIDER")), c.LLM.Provider))
	c.LLM.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_MODEL")), c.LLM.Model)
	c.LLM.APIKey = firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_API_KEY")), c.LLM.APIKey)
	c.LLM.BaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_BASE_URL")), c.LLM.BaseURL)

	c.Renderer.Kind = strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("BLUEPRINT_RENDERER")), c.Renderer.Kind))
	c.Renderer.ChromePath = firstNonEmpty(strings.TrimSpace(os.Getenv("CHROME_PATH")), c.Renderer.ChromePath)

	c.Analytics.Dataset = firstNonEmpty(strings.TrimSpace(os.Getenv("ANALYTICS_DATASET")), c.Analytics.Dataset)
	c.Analytics.Table = firstNonEmpty(strings.TrimSpace(os.Getenv("ANALYTICS_TABLE")), c.Analytics.Table)
	c.Analytics.SQLitePath = firstNonEmpty(strings.TrimSpace(os.Getenv("ANALYTICS_SQLITE_PATH")), c.Analytics.SQLitePath)

	var err error
	if c.Analytics.Enabled, err = envBool("ANALYTICS_EXPORT_ENABLED", c.Analytics.Enabled); err != nil {
		return err
	}
	if c.LLM.RPS, err = envFloat("LLM_RPS", c.LLM.RPS); err != nil {
		return err
	}
	if c.LLM.Burst, err = envInt("LLM_BURST", c.LLM.Burst); err != nil {
		return err
	}
	if c.Topic.MaxAttempts, err = envInt("BLUEPRINT_TOPIC_MAX_ATTEMPTS", c.Topic.MaxAttempts); err != nil {
		return err
	}
	if c.Topic.Workers, err = envInt("BLUEPRINT_TOPIC_WORKERS", c.Topic.Workers); err != nil {
		return err
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"BLUEPRINT_IDEMPOTENCY_WINDOW", &c.Pipeline.IdempotencyWindow},
		{"BLUEPRINT_ACCEPT_TIMEOUT", &c.Pipeline.AcceptTimeout},
		{"BLUEPRINT_RENDER_TIMEOUT", &c.Pipeline.RenderTimeout},
		{"BLUEPRINT_BUNDLE_TIMEOUT", &c.Pipeline.BundleTimeout},
		{"BLUEPRINT_EXPORT_TIMEOUT", &c.Pipeline.ExportTimeout},
		{"BLUEPRINT_SIGNED_URL_TTL", &c.Pipeline.SignedURLTTL},
		{"BLUEPRINT_TOPIC_BASE_BACKOFF", &c.Topic.BaseBackoff},
	} {
		if *d.dst, err = envDuration(d.key, *d.dst); err != nil {
			return err
		}
	}
	return nil
}

func loadArtifactConfig() ArtifactConfig {
	endpoint := strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
	return ArtifactConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "engagement-blueprints"),
		Prefix:    strings.TrimSpace(os.Getenv("ARTIFACT_S3_PREFIX")),
		UseSSL:    resolveArtifactUseSSL(),
	}
}

func resolveArtifactUseSSL() bool {
	raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func envBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envFloat(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// CanUseS3 reports whether the artifact settings are complete enough for S3.
func (a ArtifactConfig) CanUseS3() bool {
	return a.Enabled && a.Endpoint != "" && a.AccessKey != "" && a.SecretKey != "" && a.Bucket != ""
}
