package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables that override values from the config file.
const (
	EnvRegion     = "DOCSYNC_REGION"
	EnvCollection = "DOCSYNC_COLLECTION"
)

// Config represents the main configuration for docsync.
type Config struct {
	BaseDir     string            `toml:"base_dir"`
	LogDir      string            `toml:"log_dir"`
	LogLevel    string            `toml:"log_level"` // "debug", "info" (default), "warn" or "error"
	Scanner     ScannerConfig     `toml:"scanner"`
	Schedule    ScheduleConfig    `toml:"schedule"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Chunking    ChunkingConfig    `toml:"chunking"`
	Database    DatabaseConfig    `toml:"database"`
	Embedder    EmbedderConfig    `toml:"embedder"`
	Index       IndexConfig       `toml:"index"`
	Snapshot    SnapshotConfig    `toml:"snapshot"`
	Metrics     MetricsConfig     `toml:"metrics"`
}

// Duration is a time.Duration written as a string such as "5m" or "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ScannerConfig selects which files are synchronized.
type ScannerConfig struct {
	RootDir    string   `toml:"root_dir"`
	Extensions []string `toml:"extensions"`
	Ignore     []string `toml:"ignore"`
	ACL        string   `toml:"acl"` // "none" (default) or "cifs"
}

// ScheduleConfig controls when cycles run.
type ScheduleConfig struct {
	Interval      Duration `toml:"interval"`
	Watch         bool     `toml:"watch"`
	WatchDebounce Duration `toml:"watch_debounce"`
}

// ConcurrencyConfig bounds the three worker pools of a cycle.
type ConcurrencyConfig struct {
	Files       int `toml:"files"`
	Embeddings  int `toml:"embeddings"`
	IndexWrites int `toml:"index_writes"`
}

// ChunkingConfig controls how extracted text is split.
type ChunkingConfig struct {
	Size     int    `toml:"size"`
	Overlap  int    `toml:"overlap"`
	Length   string `toml:"length"`             // "chars" (default) or "tokens"
	Encoding string `toml:"encoding,omitempty"` // tiktoken encoding, only used for length=tokens
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// EmbedderConfig represents configuration for the embedding model.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type EmbedderConfig struct {
	Type      string   `toml:"type"` // "bedrock", "ollama", "openai" or "gemini"
	Model     string   `toml:"model"`
	Dimension int      `toml:"dimension,omitempty"`
	CacheSize int      `toml:"cache_size,omitempty"`
	Timeout   Duration `toml:"timeout,omitempty"`

	// Bedrock-specific fields
	Region  string `toml:"region,omitempty"`
	Profile string `toml:"profile,omitempty"`

	// HTTP provider fields (ollama, openai, gemini)
	Host   string `toml:"host,omitempty"`
	APIKey string `toml:"api_key,omitempty"`
}

// IndexConfig represents configuration for the vector index.
// This uses a tagged union pattern - the Type field determines which sub-table is relevant.
type IndexConfig struct {
	Type       string           `toml:"type"` // "opensearch", "chromem" or "qdrant"
	Name       string           `toml:"name"`
	OpenSearch OpenSearchConfig `toml:"opensearch"`
	Chromem    ChromemConfig    `toml:"chromem"`
	Qdrant     QdrantConfig     `toml:"qdrant"`
}

// OpenSearchConfig configures an OpenSearch domain or serverless collection.
type OpenSearchConfig struct {
	Endpoint    string   `toml:"endpoint,omitempty"` // discovered from the collection when empty
	Region      string   `toml:"region,omitempty"`
	Profile     string   `toml:"profile,omitempty"`
	Collection  string   `toml:"collection,omitempty"`
	Serverless  bool     `toml:"serverless"`
	CreateIndex bool     `toml:"create_index"`
	Dimension   int      `toml:"dimension"`
	ReadyWait   Duration `toml:"ready_wait,omitempty"`
}

// ChromemConfig configures the embedded chromem-go index.
type ChromemConfig struct {
	PersistPath string `toml:"persist_path,omitempty"` // in-memory when empty
	Compress    bool   `toml:"compress"`
}

// QdrantConfig configures a Qdrant collection.
type QdrantConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	APIKey    string `toml:"api_key,omitempty"`
	UseTLS    bool   `toml:"use_tls"`
	Dimension int    `toml:"dimension"`
}

// SnapshotConfig represents configuration for metadata snapshots.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type SnapshotConfig struct {
	Type string `toml:"type"` // "none" (default), "filesystem" or "s3"

	// Filesystem-specific fields
	Dir string `toml:"dir,omitempty"`

	// S3-specific fields
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`
	// S3Endpoint targets S3-compatible stores; static keys are used when both are set.
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// age key pair; snapshots are encrypted when PublicKeyPath is set
	PublicKeyPath  string `toml:"public_key_path,omitempty"`
	PrivateKeyPath string `toml:"private_key_path,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// NewConfig creates a Config rooted at baseDir with every default filled in.
func NewConfig(baseDir string) *Config {
	cfg := &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "db", "docsync.db"),
		},
		Embedder: EmbedderConfig{
			Type:  "bedrock",
			Model: "amazon.titan-embed-text-v1",
		},
		Index: IndexConfig{
			Type: "opensearch",
			OpenSearch: OpenSearchConfig{
				Serverless:  true,
				CreateIndex: true,
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field that has a default.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.Scanner.Extensions) == 0 {
		c.Scanner.Extensions = []string{".txt", ".csv", ".pdf"}
	}
	if c.Scanner.ACL == "" {
		c.Scanner.ACL = "none"
	}
	if c.Schedule.Interval.Duration == 0 {
		c.Schedule.Interval.Duration = 5 * time.Minute
	}
	if c.Schedule.WatchDebounce.Duration == 0 {
		c.Schedule.WatchDebounce.Duration = 2 * time.Second
	}
	if c.Concurrency.Files == 0 {
		c.Concurrency.Files = 4
	}
	if c.Concurrency.Embeddings == 0 {
		c.Concurrency.Embeddings = 2
	}
	if c.Concurrency.IndexWrites == 0 {
		c.Concurrency.IndexWrites = 4
	}
	if c.Chunking.Size == 0 {
		c.Chunking.Size = 1000
	}
	if c.Chunking.Overlap == 0 && c.Chunking.Size > 200 {
		c.Chunking.Overlap = 200
	}
	if c.Chunking.Length == "" {
		c.Chunking.Length = "chars"
	}
	if c.Chunking.Length == "tokens" && c.Chunking.Encoding == "" {
		c.Chunking.Encoding = "cl100k_base"
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Embedder.CacheSize == 0 {
		c.Embedder.CacheSize = 10000
	}
	if c.Embedder.Timeout.Duration == 0 {
		c.Embedder.Timeout.Duration = 30 * time.Second
	}
	if c.Index.OpenSearch.Dimension == 0 {
		c.Index.OpenSearch.Dimension = 1536
	}
	if c.Index.OpenSearch.ReadyWait.Duration == 0 {
		c.Index.OpenSearch.ReadyWait.Duration = 10 * time.Second
	}
	if c.Index.Qdrant.Host == "" {
		c.Index.Qdrant.Host = "localhost"
	}
	if c.Index.Qdrant.Port == 0 {
		c.Index.Qdrant.Port = 6334
	}
	if c.Index.Qdrant.Dimension == 0 {
		c.Index.Qdrant.Dimension = 1536
	}
	if c.Index.Name == "" {
		if c.Index.OpenSearch.Collection != "" {
			c.Index.Name = c.Index.OpenSearch.Collection + "-index"
		} else {
			c.Index.Name = "docsync"
		}
	}
	if c.Snapshot.Type == "" {
		c.Snapshot.Type = "none"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9464"
	}
}

// ApplyEnv overrides region and collection from the environment.
func (c *Config) ApplyEnv() {
	if region := os.Getenv(EnvRegion); region != "" {
		c.Embedder.Region = region
		c.Index.OpenSearch.Region = region
	}
	if collection := os.Getenv(EnvCollection); collection != "" {
		c.Index.OpenSearch.Collection = collection
		c.Index.Name = collection + "-index"
	}
}

// Validate checks enum values and numeric bounds.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unsupported value %q (want one of %v)", field, value, allowed))
	}

	check("log_level", c.LogLevel, "debug", "info", "warn", "error")
	check("scanner.acl", c.Scanner.ACL, "none", "cifs")
	check("chunking.length", c.Chunking.Length, "chars", "tokens")
	check("database.type", c.Database.Type, "sqlite", "memory")
	check("embedder.type", c.Embedder.Type, "bedrock", "ollama", "openai", "gemini")
	check("index.type", c.Index.Type, "opensearch", "chromem", "qdrant")
	check("snapshot.type", c.Snapshot.Type, "none", "filesystem", "s3")

	if c.Scanner.RootDir == "" {
		errs = append(errs, errors.New("scanner.root_dir is required"))
	}
	if c.Schedule.Interval.Duration <= 0 {
		errs = append(errs, errors.New("schedule.interval must be positive"))
	}
	if c.Concurrency.Files < 1 || c.Concurrency.Embeddings < 1 || c.Concurrency.IndexWrites < 1 {
		errs = append(errs, errors.New("concurrency values must be at least 1"))
	}
	if c.Chunking.Size < 1 {
		errs = append(errs, errors.New("chunking.size must be positive"))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, fmt.Errorf("chunking.overlap must be in [0, %d)", c.Chunking.Size))
	}
	if c.Index.Type == "opensearch" && c.Index.OpenSearch.Endpoint == "" && c.Index.OpenSearch.Collection == "" {
		errs = append(errs, errors.New("index.opensearch needs an endpoint or a collection"))
	}
	if c.Snapshot.Type == "filesystem" && c.Snapshot.Dir == "" {
		errs = append(errs, errors.New("snapshot.dir is required for filesystem snapshots"))
	}
	if c.Snapshot.Type == "s3" && c.Snapshot.S3Bucket == "" {
		errs = append(errs, errors.New("snapshot.s3_bucket is required for s3 snapshots"))
	}

	return errors.Join(errs...)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from path and fills in defaults and environment
// overrides.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	cfg.ApplyEnv()
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
