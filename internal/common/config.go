package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the full application configuration for the ingestion pipeline.
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	DataDir     string            `toml:"data_dir"`
	ReadmesDir  string            `toml:"readmes_dir"`
	Logging     LoggingConfig     `toml:"logging"`
	Proxy       ProxyConfig       `toml:"proxy"`
	Fetch       FetchConfig       `toml:"fetch"`
	WorkSource  WorkSourceConfig  `toml:"work_source"`
	Embed       EmbedConfig       `toml:"embed"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	GitHub      GitHubConfig      `toml:"github"`
}

// LoggingConfig mirrors the teacher's logging section (arbor writer selection).
type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default "15:04:05.000"
}

// ProxyConfig configures the proxy pool (internal/proxypool).
type ProxyConfig struct {
	Paths          []string      `toml:"paths"`           // proxy list file paths (repeatable via -proxies)
	InitialEMAMS   float64       `toml:"initial_ema_ms"`  // seed latency before any observation
	PenaltyMS      float64       `toml:"penalty_ms"`      // EMA penalty applied on network failure
	RequestTimeout time.Duration `toml:"request_timeout"` // per-attempt HTTP timeout
	RatePerSecond  float64       `toml:"rate_per_second"` // optional soft per-proxy request cap, 0 disables
}

// FetchConfig configures the Fetch Engine (internal/fetch).
type FetchConfig struct {
	Concurrency int      `toml:"concurrency"` // in-flight fetch tasks
	MaxRetries  int      `toml:"max_retries"`
	MinSizeByte int      `toml:"min_size_bytes"`   // content below this -> tooSmall
	MaxChars    int      `toml:"max_chars"`        // truncate above this, append [TRUNCATED]
	Branches    []string `toml:"branches"`         // search order, e.g. ["master", "main"]
	Filenames   []string `toml:"filenames"`        // README candidate names, e.g. ["README.md", ...]
	Verbose     bool     `toml:"verbose"`
}

// WorkSourceConfig configures the Work Source (internal/worksource).
type WorkSourceConfig struct {
	ArchivePath  string `toml:"archive_path"` // columnar origin-URL archive
	CursorDBPath string `toml:"cursor_db_path"`
	MinDate      string `toml:"min_date"` // YYYY-MM-DD
	Offset       int    `toml:"offset"`
	Limit        int    `toml:"limit"`
	BatchSize    int    `toml:"batch_size"` // emit origins in batches of this size
	Full         bool   `toml:"full"`       // -full: ignore offset/limit, process entire table
}

// EmbedConfig configures both embed drivers (internal/embedproviders).
type EmbedConfig struct {
	Provider         string        `toml:"provider"`            // deepinfra | nebius | nebius-batch
	Model            string        `toml:"model"`               // embedding model name, provider-specific
	BaseURL          string        `toml:"base_url"`            // override the provider's default endpoint
	Dimension        int           `toml:"dimension"`           // embedding vector width, must match VectorStoreConfig.Dimension
	Keys             int           `toml:"keys"`                // number of API keys configured (round robin)
	Workers          int           `toml:"workers"`             // realtime driver worker pool size (W)
	BatchSize        int           `toml:"batch_size"`          // realtime sub-batch item count limit
	MaxBatchChars    int           `toml:"max_batch_chars"`     // realtime sub-batch byte budget
	BatchChunkSize   int           `toml:"batch_chunk_size"`    // async batch: items per submitted chunk
	BatchParallel    int           `toml:"batch_parallel"`      // async batch: concurrent chunks
	PollInterval     time.Duration `toml:"poll_interval"`       // async batch: status poll cadence
	MaxContentLen    int           `toml:"max_content_len"`     // item content truncation before embedding
	PricePerMTokens  float64       `toml:"price_per_mtokens"`   // for cost estimation
	BatchStateDBPath string        `toml:"batch_state_db_path"` // durable batchId -> BatchRecord store
}

// VectorStoreConfig configures the Qdrant adapter (internal/vectorstore).
type VectorStoreConfig struct {
	URL            string `toml:"url"`
	CollectionName string `toml:"collection_name"`
	Dimension      int    `toml:"dimension"` // 4096 or 1536
}

// GitHubConfig configures the optional GitHub-API origin source (internal/githubsrc).
type GitHubConfig struct {
	Token string `toml:"token"`
}

// NewDefaultConfig returns a Config populated with the pipeline's documented defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		DataDir:     "./data",
		ReadmesDir:  "./data/readmes",
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Proxy: ProxyConfig{
			InitialEMAMS:   1000,
			PenaltyMS:      15000,
			RequestTimeout: 30 * time.Second,
		},
		Fetch: FetchConfig{
			Concurrency: 1200,
			MaxRetries:  5,
			MinSizeByte: 500,
			MaxChars:    50000,
			Branches:    []string{"master", "main", "default"},
			Filenames:   []string{"README.md", "readme.md", "Readme.md", "README", "README.rst", "README.txt"},
		},
		WorkSource: WorkSourceConfig{
			ArchivePath:  "./data/origins.csv",
			CursorDBPath: "./data/readmes/.fetch-cache.sqlite",
			BatchSize:    50000,
		},
		Embed: EmbedConfig{
			Provider:        "deepinfra",
			Model:           "Qwen/Qwen3-Embedding-8B",
			Dimension:       1536,
			Keys:            1,
			Workers:         48,
			BatchSize:       64,
			MaxBatchChars:   120000,
			BatchChunkSize:  25000,
			BatchParallel:   3,
			PollInterval:    30 * time.Second,
			MaxContentLen:   16000,
			PricePerMTokens: 0.01,
			BatchStateDBPath: "./data/batch-state.badger",
		},
		VectorStore: VectorStoreConfig{
			URL:            "http://localhost:6334",
			CollectionName: "readmes",
			Dimension:      1536,
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier ones. CLI flag overrides are applied afterward by the caller
// via ApplyFlagOverrides, so the final priority is CLI > env > last file > ... > first file > defaults.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies the environment variables named in spec.md §6.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		config.DataDir = v
	}
	if v := os.Getenv("READMES_DIR"); v != "" {
		config.ReadmesDir = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		config.VectorStore.URL = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		config.GitHub.Token = v
	}
}

// ResolveAPIKeys resolves the N configured embedding API keys for the active provider,
// checking "<PROVIDER>_API_KEY" then "<PROVIDER>_API_KEY_<i>" for i in [1, n).
// A "-batch" provider shares its base provider's keys (nebius-batch reads NEBIUS_API_KEY).
func ResolveAPIKeys(provider string, n int) ([]string, error) {
	prefix := strings.ToUpper(strings.TrimSuffix(provider, "-batch")) + "_API_KEY"
	keys := make([]string, 0, n)

	if v := os.Getenv(prefix); v != "" {
		keys = append(keys, v)
	}
	for i := 1; i < n; i++ {
		if v := os.Getenv(prefix + "_" + strconv.Itoa(i)); v != "" {
			keys = append(keys, v)
		}
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("no API keys found for provider %q (expected env var %s)", provider, prefix)
	}

	return keys, nil
}

// ApplyFlagOverrides applies the highest-priority CLI flag overrides for the fetch subcommand.
func ApplyFlagOverrides(config *Config, offset, limit int, full bool, minDate string, proxyPaths []string, verbose bool) {
	if offset > 0 {
		config.WorkSource.Offset = offset
	}
	if limit > 0 {
		config.WorkSource.Limit = limit
	}
	if full {
		config.WorkSource.Full = full
	}
	if minDate != "" {
		config.WorkSource.MinDate = minDate
	}
	if len(proxyPaths) > 0 {
		config.Proxy.Paths = proxyPaths
	}
	if verbose {
		config.Fetch.Verbose = verbose
	}
}

// DefaultEmbedBaseURL returns the documented default endpoint for a known
// embedding provider name, used when EmbedConfig.BaseURL is left blank.
func DefaultEmbedBaseURL(provider string) string {
	switch strings.ToLower(provider) {
	case "deepinfra":
		return "https://api.deepinfra.com/v1/inference"
	case "nebius", "nebius-batch":
		return "https://api.studio.nebius.com/v1"
	default:
		return ""
	}
}

// IsProduction reports whether the configured environment is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
