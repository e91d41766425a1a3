package domain

import "time"

// AIProvider identifies an AI service provider for embeddings or extraction.
type AIProvider string

// Available AI providers.
const (
	// AIProviderNone means no provider is configured. Embeddings fall back
	// to deterministic mock vectors and extraction to offline heuristics.
	AIProviderNone AIProvider = ""

	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is the Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// String returns the string representation.
func (p AIProvider) String() string {
	if p == AIProviderNone {
		return "none"
	}
	return string(p)
}

// Config is the runtime configuration, resolved once at startup and
// passed by value into each component.
type Config struct {
	Storage    StorageConfig
	Chunking   ChunkingConfig
	Embedding  EmbeddingSettings
	Extraction ExtractionSettings
	Search     SearchSettings
	Queue      QueueConfig
	Scheduler  SchedulerConfig
	Graph      GraphSettings
	Metrics    MetricsSettings
	Log        LogSettings
}

// StorageConfig locates on-disk state.
type StorageConfig struct {
	// DataDir holds the SQLite database and badger queue.
	DataDir string `validate:"required"`

	// BlobDir is the root of the filesystem blob store.
	BlobDir string `validate:"required"`
}

// ChunkingConfig holds chunker defaults.
type ChunkingConfig struct {
	Size    int `validate:"gt=0"`
	Overlap int `validate:"gte=0,ltfield=Size"`
	MinSize int `validate:"gte=0,ltefield=Size"`
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider. Empty means mock mode.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint override.
	BaseURL string

	// APIKey is the API key (for OpenAI). Only ever read from the environment.
	APIKey string

	// Dimensions is the vector size. Zero means the model's default.
	Dimensions int `validate:"gte=0"`

	// BatchSize bounds texts per provider call.
	BatchSize int `validate:"gte=1,lte=2048"`

	// BatchDelay is slept between sequential batches.
	BatchDelay time.Duration

	// RequestsPerMinute paces provider calls. Zero disables pacing.
	RequestsPerMinute int `validate:"gte=0"`
}

// IsConfigured returns true if a real embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// ExtractionSettings holds LLM extraction provider configuration.
type ExtractionSettings struct {
	// Provider is resolved from credentials, see ResolveExtractionProvider.
	Provider AIProvider

	Model   string
	BaseURL string

	// OpenAIKey and AnthropicKey are read from the environment.
	OpenAIKey    string
	AnthropicKey string

	MaxTokens   int     `validate:"gte=0"`
	Temperature float64 `validate:"gte=0,lte=2"`
	Timeout     time.Duration

	// AutoEnqueue schedules extraction after a successful index.
	AutoEnqueue bool
}

// ResolveExtractionProvider picks the extraction provider from the
// available credentials: Anthropic, then OpenAI, then an explicitly
// configured Ollama, else none (offline heuristics).
func (e ExtractionSettings) ResolveExtractionProvider() AIProvider {
	switch {
	case e.AnthropicKey != "":
		return AIProviderAnthropic
	case e.OpenAIKey != "":
		return AIProviderOpenAI
	case e.Provider == AIProviderOllama:
		return AIProviderOllama
	default:
		return AIProviderNone
	}
}

// APIKeyFor returns the credential for provider p.
func (e ExtractionSettings) APIKeyFor(p AIProvider) string {
	switch p {
	case AIProviderAnthropic:
		return e.AnthropicKey
	case AIProviderOpenAI:
		return e.OpenAIKey
	default:
		return ""
	}
}

// SearchSettings holds search defaults.
type SearchSettings struct {
	Limit         int     `validate:"gt=0"`
	MinScore      float64 `validate:"gte=0,lte=1"`
	SnippetWindow int     `validate:"gt=0"`
}

// QueueConfig holds broker and worker pool configuration.
type QueueConfig struct {
	// Dir is the badger directory. Defaults to <DataDir>/queue.
	Dir string

	// Concurrency is the number of worker slots per queue.
	Concurrency int `validate:"gte=1"`

	PollInterval      time.Duration
	VisibilityTimeout time.Duration

	// Policies holds retry and retention per queue.
	Policies map[QueueName]RetryPolicy
}

// Policy returns the retry policy for q, falling back to defaults.
func (c QueueConfig) Policy(q QueueName) RetryPolicy {
	if p, ok := c.Policies[q]; ok && p.MaxAttempts > 0 {
		return p
	}
	return DefaultRetryPolicies()[q]
}

// GraphSettings configures the optional Neo4j mirror.
type GraphSettings struct {
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
}

// IsConfigured returns true if a mirror URI is set.
func (g GraphSettings) IsConfigured() bool {
	return g.Neo4jURI != ""
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string
}

// LogSettings configures logging.
type LogSettings struct {
	// Format is "text" or "json".
	Format  string `validate:"omitempty,oneof=text json"`
	Verbose bool
}

// DefaultConfig returns sensible defaults rooted at dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		Storage: StorageConfig{
			DataDir: dataDir,
			BlobDir: dataDir + "/blobs",
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
			MinSize: 100,
		},
		Embedding: EmbeddingSettings{
			BatchSize:  20,
			BatchDelay: 100 * time.Millisecond,
		},
		Extraction: ExtractionSettings{
			MaxTokens:   2000,
			Temperature: 0.1,
			Timeout:     60 * time.Second,
		},
		Search: SearchSettings{
			Limit:         DefaultSearchLimit,
			MinScore:      DefaultSearchMinScore,
			SnippetWindow: DefaultSnippetWindow,
		},
		Queue: QueueConfig{
			Dir:               dataDir + "/queue",
			Concurrency:       2,
			PollInterval:      time.Second,
			VisibilityTimeout: 10 * time.Minute,
			Policies:          DefaultRetryPolicies(),
		},
		Scheduler: DefaultSchedulerConfig(),
		Log: LogSettings{
			Format: "text",
		},
	}
}
