package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

// ConfigFile is the default configuration filename.
const ConfigFile = "config.toml"

// Environment variables read by the loader. Credentials are never read from
// the TOML file.
const (
	EnvOpenAIKey      = "OPENAI_API_KEY"
	EnvAnthropicKey   = "ANTHROPIC_API_KEY"
	EnvOllamaBaseURL  = "OLLAMA_BASE_URL"
	EnvDataDir        = "DOCGRAPH_DATA_DIR"
	EnvBlobDir        = "DOCGRAPH_BLOB_DIR"
	EnvEmbedProvider  = "DOCGRAPH_EMBEDDING_PROVIDER"
	EnvEmbedModel     = "DOCGRAPH_EMBEDDING_MODEL"
	EnvExtractProv    = "DOCGRAPH_EXTRACTION_PROVIDER"
	EnvExtractModel   = "DOCGRAPH_EXTRACTION_MODEL"
	EnvConcurrency    = "DOCGRAPH_QUEUE_CONCURRENCY"
	EnvMetricsAddr    = "DOCGRAPH_METRICS_ADDR"
	EnvLogFormat      = "DOCGRAPH_LOG_FORMAT"
	EnvNeo4jURI       = "DOCGRAPH_NEO4J_URI"
	EnvNeo4jUser      = "DOCGRAPH_NEO4J_USER"
	EnvNeo4jPassword  = "DOCGRAPH_NEO4J_PASSWORD"
	EnvAutoExtraction = "DOCGRAPH_AUTO_EXTRACT"
)

// Loader resolves the runtime configuration once at startup.
// Precedence, lowest first: defaults, config.toml, .env, process environment.
type Loader struct {
	path    string
	envFile string
	lookup  func(string) (string, bool)
}

// NewLoader creates a loader for the TOML file at path.
// If path is empty, defaults to ~/.docgraph/config.toml.
func NewLoader(path string) (*Loader, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("config: getting home directory: %w", err)
		}
		path = filepath.Join(home, ".docgraph", ConfigFile)
	}
	return &Loader{
		path:    path,
		envFile: ".env",
		lookup:  os.LookupEnv,
	}, nil
}

// WithEnvFile overrides the .env location. An empty path disables it.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// WithLookup replaces the process environment lookup. Useful for testing.
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	l.lookup = lookup
	return l
}

// Path returns the configuration file path.
func (l *Loader) Path() string {
	return l.path
}

// Load reads, merges and validates the configuration.
// A missing config file or .env is not an error.
func (l *Loader) Load() (domain.Config, error) {
	dataDir := filepath.Join(filepath.Dir(l.path), "data")
	cfg := domain.DefaultConfig(dataDir)

	var fc fileConfig
	data, err := os.ReadFile(l.path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &fc); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", l.path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("config: reading %s: %w", l.path, err)
	}

	fc.apply(&cfg)

	dotenv := map[string]string{}
	if l.envFile != "" {
		if dotenv, err = godotenv.Read(l.envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, fmt.Errorf("config: reading %s: %w", l.envFile, err)
			}
			dotenv = map[string]string{}
		}
	}
	env := func(key string) string {
		if v, ok := l.lookup(key); ok {
			return v
		}
		return dotenv[key]
	}
	if err := applyEnv(&cfg, env); err != nil {
		return cfg, err
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// WriteDefault writes a commented default config file if none exists.
func (l *Loader) WriteDefault() error {
	if _, err := os.Stat(l.path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("config: creating directory: %w", err)
	}
	return os.WriteFile(l.path, []byte(defaultConfigTOML), 0600)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its struct tags.
func Validate(cfg domain.Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config: %w: %s", domain.ErrInvalidInput, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: %w", err)
	}
	for q, p := range cfg.Queue.Policies {
		if !q.IsValid() {
			return fmt.Errorf("config: %w: unknown queue %q", domain.ErrInvalidInput, q)
		}
		if p.MaxAttempts < 1 {
			return fmt.Errorf("config: %w: queue %q needs at least one attempt", domain.ErrInvalidInput, q)
		}
	}
	return nil
}

func applyEnv(cfg *domain.Config, env func(string) string) error {
	setString := func(dst *string, key string) {
		if v := env(key); v != "" {
			*dst = v
		}
	}

	setString(&cfg.Storage.DataDir, EnvDataDir)
	if v := env(EnvDataDir); v != "" && env(EnvBlobDir) == "" {
		cfg.Storage.BlobDir = filepath.Join(v, "blobs")
		cfg.Queue.Dir = filepath.Join(v, "queue")
	}
	setString(&cfg.Storage.BlobDir, EnvBlobDir)

	if v := env(EnvEmbedProvider); v != "" {
		cfg.Embedding.Provider = domain.AIProvider(strings.ToLower(v))
	}
	setString(&cfg.Embedding.Model, EnvEmbedModel)
	if v := env(EnvExtractProv); v != "" {
		cfg.Extraction.Provider = domain.AIProvider(strings.ToLower(v))
	}
	setString(&cfg.Extraction.Model, EnvExtractModel)

	cfg.Embedding.APIKey = env(EnvOpenAIKey)
	cfg.Extraction.OpenAIKey = env(EnvOpenAIKey)
	cfg.Extraction.AnthropicKey = env(EnvAnthropicKey)

	if v := env(EnvOllamaBaseURL); v != "" {
		if cfg.Embedding.Provider == domain.AIProviderOllama && cfg.Embedding.BaseURL == "" {
			cfg.Embedding.BaseURL = v
		}
		if cfg.Extraction.BaseURL == "" {
			cfg.Extraction.BaseURL = v
		}
	}

	if v := env(EnvConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvConcurrency, err)
		}
		cfg.Queue.Concurrency = n
	}
	if v := env(EnvAutoExtraction); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvAutoExtraction, err)
		}
		cfg.Extraction.AutoEnqueue = b
	}

	setString(&cfg.Metrics.Addr, EnvMetricsAddr)
	setString(&cfg.Log.Format, EnvLogFormat)
	setString(&cfg.Graph.Neo4jURI, EnvNeo4jURI)
	setString(&cfg.Graph.Neo4jUser, EnvNeo4jUser)
	setString(&cfg.Graph.Neo4jPassword, EnvNeo4jPassword)
	return nil
}

// duration decodes TOML strings such as "5s" or "10m".
type duration struct {
	time.Duration
	set bool
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	d.set = true
	return nil
}

// fileConfig mirrors config.toml. Zero values leave defaults in place.
type fileConfig struct {
	Storage struct {
		DataDir string `toml:"data_dir"`
		BlobDir string `toml:"blob_dir"`
	} `toml:"storage"`

	Chunking struct {
		Size    int  `toml:"size"`
		Overlap *int `toml:"overlap"`
		MinSize *int `toml:"min_size"`
	} `toml:"chunking"`

	Embedding struct {
		Provider          string   `toml:"provider"`
		Model             string   `toml:"model"`
		BaseURL           string   `toml:"base_url"`
		Dimensions        int      `toml:"dimensions"`
		BatchSize         int      `toml:"batch_size"`
		BatchDelay        duration `toml:"batch_delay"`
		RequestsPerMinute int      `toml:"requests_per_minute"`
	} `toml:"embedding"`

	Extraction struct {
		Provider    string   `toml:"provider"`
		Model       string   `toml:"model"`
		BaseURL     string   `toml:"base_url"`
		MaxTokens   int      `toml:"max_tokens"`
		Temperature *float64 `toml:"temperature"`
		Timeout     duration `toml:"timeout"`
		AutoEnqueue bool     `toml:"auto_enqueue"`
	} `toml:"extraction"`

	Search struct {
		Limit         int      `toml:"limit"`
		MinScore      *float64 `toml:"min_score"`
		SnippetWindow int      `toml:"snippet_window"`
	} `toml:"search"`

	Queue struct {
		Dir               string                 `toml:"dir"`
		Concurrency       int                    `toml:"concurrency"`
		PollInterval      duration               `toml:"poll_interval"`
		VisibilityTimeout duration               `toml:"visibility_timeout"`
		Retry             map[string]retryConfig `toml:"retry"`
	} `toml:"queue"`

	Schedule struct {
		Enabled          *bool  `toml:"enabled"`
		IndexPending     string `toml:"index_pending"`
		QueueMaintenance string `toml:"queue_maintenance"`
	} `toml:"schedule"`

	Graph struct {
		Neo4jURI  string `toml:"neo4j_uri"`
		Neo4jUser string `toml:"neo4j_user"`
	} `toml:"graph"`

	Metrics struct {
		Addr string `toml:"addr"`
	} `toml:"metrics"`

	Log struct {
		Format  string `toml:"format"`
		Verbose bool   `toml:"verbose"`
	} `toml:"log"`
}

type retryConfig struct {
	MaxAttempts        int      `toml:"max_attempts"`
	Backoff            duration `toml:"backoff"`
	CompletedRetention duration `toml:"completed_retention"`
	FailedRetention    duration `toml:"failed_retention"`
}

//nolint:gocyclo // flat field-by-field merge
func (fc *fileConfig) apply(cfg *domain.Config) {
	if fc.Storage.DataDir != "" {
		dir := expandHome(fc.Storage.DataDir)
		cfg.Storage.DataDir = dir
		cfg.Storage.BlobDir = filepath.Join(dir, "blobs")
		cfg.Queue.Dir = filepath.Join(dir, "queue")
	}
	if fc.Storage.BlobDir != "" {
		cfg.Storage.BlobDir = expandHome(fc.Storage.BlobDir)
	}

	if fc.Chunking.Size > 0 {
		cfg.Chunking.Size = fc.Chunking.Size
	}
	if fc.Chunking.Overlap != nil {
		cfg.Chunking.Overlap = *fc.Chunking.Overlap
	}
	if fc.Chunking.MinSize != nil {
		cfg.Chunking.MinSize = *fc.Chunking.MinSize
	}

	e := &cfg.Embedding
	if fc.Embedding.Provider != "" {
		e.Provider = domain.AIProvider(strings.ToLower(fc.Embedding.Provider))
	}
	setIfNotEmpty(&e.Model, fc.Embedding.Model)
	setIfNotEmpty(&e.BaseURL, fc.Embedding.BaseURL)
	setIfPositive(&e.Dimensions, fc.Embedding.Dimensions)
	setIfPositive(&e.BatchSize, fc.Embedding.BatchSize)
	setIfPositive(&e.RequestsPerMinute, fc.Embedding.RequestsPerMinute)
	if fc.Embedding.BatchDelay.set {
		e.BatchDelay = fc.Embedding.BatchDelay.Duration
	}

	x := &cfg.Extraction
	if fc.Extraction.Provider != "" {
		x.Provider = domain.AIProvider(strings.ToLower(fc.Extraction.Provider))
	}
	setIfNotEmpty(&x.Model, fc.Extraction.Model)
	setIfNotEmpty(&x.BaseURL, fc.Extraction.BaseURL)
	setIfPositive(&x.MaxTokens, fc.Extraction.MaxTokens)
	if fc.Extraction.Temperature != nil {
		x.Temperature = *fc.Extraction.Temperature
	}
	if fc.Extraction.Timeout.set {
		x.Timeout = fc.Extraction.Timeout.Duration
	}
	x.AutoEnqueue = x.AutoEnqueue || fc.Extraction.AutoEnqueue

	setIfPositive(&cfg.Search.Limit, fc.Search.Limit)
	setIfPositive(&cfg.Search.SnippetWindow, fc.Search.SnippetWindow)
	if fc.Search.MinScore != nil {
		cfg.Search.MinScore = *fc.Search.MinScore
	}

	q := &cfg.Queue
	if fc.Queue.Dir != "" {
		q.Dir = expandHome(fc.Queue.Dir)
	}
	setIfPositive(&q.Concurrency, fc.Queue.Concurrency)
	if fc.Queue.PollInterval.set {
		q.PollInterval = fc.Queue.PollInterval.Duration
	}
	if fc.Queue.VisibilityTimeout.set {
		q.VisibilityTimeout = fc.Queue.VisibilityTimeout.Duration
	}
	for name, rc := range fc.Queue.Retry {
		qn := domain.QueueName(name)
		p := q.Policy(qn)
		setIfPositive(&p.MaxAttempts, rc.MaxAttempts)
		if rc.Backoff.set {
			p.Backoff = rc.Backoff.Duration
		}
		if rc.CompletedRetention.set {
			p.CompletedRetention = rc.CompletedRetention.Duration
		}
		if rc.FailedRetention.set {
			p.FailedRetention = rc.FailedRetention.Duration
		}
		if q.Policies == nil {
			q.Policies = make(map[domain.QueueName]domain.RetryPolicy)
		}
		q.Policies[qn] = p
	}

	s := &cfg.Scheduler
	if fc.Schedule.Enabled != nil {
		s.Enabled = *fc.Schedule.Enabled
	}
	setSchedule(s, domain.TaskIDIndexPending, fc.Schedule.IndexPending)
	setSchedule(s, domain.TaskIDQueueMaintenance, fc.Schedule.QueueMaintenance)

	setIfNotEmpty(&cfg.Graph.Neo4jURI, fc.Graph.Neo4jURI)
	setIfNotEmpty(&cfg.Graph.Neo4jUser, fc.Graph.Neo4jUser)
	setIfNotEmpty(&cfg.Metrics.Addr, fc.Metrics.Addr)
	setIfNotEmpty(&cfg.Log.Format, fc.Log.Format)
	cfg.Log.Verbose = cfg.Log.Verbose || fc.Log.Verbose
}

// setSchedule overrides a task's cron expression. "off" disables the task.
func setSchedule(s *domain.SchedulerConfig, taskID, expr string) {
	if expr == "" {
		return
	}
	if s.TaskConfigs == nil {
		s.TaskConfigs = make(map[string]domain.TaskConfig)
	}
	tc := s.TaskConfigs[taskID]
	if expr == "off" {
		tc.Enabled = false
	} else {
		tc.Enabled = true
		tc.Schedule = expr
	}
	s.TaskConfigs[taskID] = tc
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setIfPositive(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

const defaultConfigTOML = `# docgraph configuration.
# Credentials are read from the environment only:
#   OPENAI_API_KEY, ANTHROPIC_API_KEY, OLLAMA_BASE_URL

[storage]
# data_dir = "~/.docgraph/data"

[chunking]
size = 1000
overlap = 200
min_size = 100

[embedding]
# provider = "openai"   # openai | ollama; empty uses mock vectors
# model = "text-embedding-3-small"
batch_size = 20
batch_delay = "100ms"

[extraction]
# provider = "ollama"   # anthropic and openai are picked from credentials
max_tokens = 2000
temperature = 0.1
timeout = "60s"
auto_enqueue = false

[search]
limit = 10
min_score = 0.3
snippet_window = 200

[queue]
concurrency = 2
poll_interval = "1s"
visibility_timeout = "10m"

[queue.retry.document-indexing]
max_attempts = 3
backoff = "5s"

[schedule]
enabled = true
index_pending = "@every 5m"
queue_maintenance = "@every 1m"

[graph]
# neo4j_uri = "neo4j://localhost:7687"

[metrics]
# addr = ":9464"

[log]
format = "text"
`
