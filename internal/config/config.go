package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/seanblong/solutionfinder/internal/ai"
	"github.com/seanblong/solutionfinder/internal/document"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Provider       string        `yaml:"provider"`
	APIKey         string        `yaml:"providerApiKey" envconfig:"PROVIDER_API_KEY"`
	EmbedModel     string        `yaml:"providerEmbedModel" envconfig:"PROVIDER_EMBEDDING_MODEL"`
	ChatModel      string        `yaml:"providerChatModel" envconfig:"PROVIDER_CHAT_MODEL"`
	ProjectID      string        `yaml:"providerProjectID" envconfig:"PROVIDER_PROJECT_ID"`
	Location       string        `yaml:"providerLocation" envconfig:"PROVIDER_LOCATION"`
	Dim            int           `yaml:"providerDim" envconfig:"EMBED_DIM"`
	RequestTimeout time.Duration `yaml:"requestTimeout" split_words:"true"`
	IndexDir       string        `yaml:"indexDir" split_words:"true"`
	Documents      []string      `yaml:"documents"`
	DocumentsDir   string        `yaml:"documentsDir" split_words:"true"`
	ChunkSize      int           `yaml:"chunkSize" split_words:"true"`
	ChunkOverlap   int           `yaml:"chunkOverlap" split_words:"true"`
	TopK           int           `yaml:"topK" envconfig:"TOP_K"`
	QueryCacheSize int           `yaml:"queryCacheSize" split_words:"true"`
	LogLevel       string        `yaml:"logLevel" split_words:"true"`

	flags *pflag.FlagSet `ignored:"true"`
}

const envPrefix = "SOLUTIONFINDER"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/solutionfinder.yaml",
				"config/config.yaml",
				"./solutionfinder.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = ai.DefaultTimeout
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if err := cfg.Validate(); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail deep inside a run.
func (s *Specification) Validate() error {
	var errs []error
	switch ai.Provider(s.Provider) {
	case ai.ProviderStub:
	case ai.ProviderOpenAI:
		if strings.TrimSpace(s.APIKey) == "" {
			errs = append(errs, errors.New(envPrefix+"_PROVIDER_API_KEY is required for provider openai (env/file/flag)"))
		}
	case ai.ProviderVertexAI:
		if strings.TrimSpace(s.APIKey) == "" && strings.TrimSpace(s.ProjectID) == "" {
			errs = append(errs, errors.New("provider vertexai needs an API key or a project ID"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported provider %q (stub|openai|vertexai)", s.Provider))
	}
	if strings.TrimSpace(s.IndexDir) == "" {
		errs = append(errs, errors.New("index dir is required"))
	}
	if s.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", s.ChunkSize))
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", s.ChunkOverlap))
	}
	if s.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top-k must be positive, got %d", s.TopK))
	}
	for i, p := range s.Documents {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("document entry %d is blank", i))
		}
	}
	if len(document.Normalize(s.Documents)) == 0 && strings.TrimSpace(s.DocumentsDir) == "" {
		errs = append(errs, errors.New("at least one document or a documents dir is required"))
	}
	return errors.Join(errs...)
}

// ClientConfig maps the provider settings onto the AI client.
func (s *Specification) ClientConfig() *ai.ClientConfig {
	return &ai.ClientConfig{
		APIKey:     s.APIKey,
		EmbedModel: s.EmbedModel,
		ChatModel:  s.ChatModel,
		Dim:        s.Dim,
		ProjectID:  s.ProjectID,
		Location:   s.Location,
		Provider:   ai.Provider(s.Provider),
		Timeout:    s.RequestTimeout,
	}
}

// SourcePaths returns the configured documents followed by every supported
// file under DocumentsDir, without duplicates.
func (s *Specification) SourcePaths() ([]string, error) {
	paths := append([]string(nil), s.Documents...)
	if dir := strings.TrimSpace(s.DocumentsDir); dir != "" {
		found, err := document.Discover(&document.DefaultFileSystemWalker{}, dir)
		if err != nil {
			return nil, fmt.Errorf("discover documents in %s: %w", dir, err)
		}
		paths = append(paths, found...)
	}
	return document.Normalize(paths), nil
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("provider", c.Provider, "Provider (stub|openai|vertexai)")
	fs.String("provider-api-key", c.APIKey, "Provider API key")
	fs.String("provider-embedding-model", c.EmbedModel, "Provider embedding model")
	fs.String("provider-chat-model", c.ChatModel, "Provider chat completion model")
	fs.String("provider-project-id", c.ProjectID, "Provider project ID")
	fs.String("provider-location", c.Location, "Provider location/region")

	fs.Int("embed-dim", c.Dim, "Embedding dimensionality")
	fs.Duration("request-timeout", c.RequestTimeout, "Timeout for each provider request")

	fs.String("index-dir", c.IndexDir, "Directory holding the persisted index")
	fs.StringSlice("documents", c.Documents, "Source documents to index (comma separated)")
	fs.String("documents-dir", c.DocumentsDir, "Directory to scan for .pdf, .txt and .md documents")
	fs.Int("chunk-size", c.ChunkSize, "Characters per chunk")
	fs.Int("chunk-overlap", c.ChunkOverlap, "Characters shared by consecutive chunks")
	fs.Int("top-k", c.TopK, "Number of chunks retrieved per query")
	fs.Int("query-cache-size", c.QueryCacheSize, "Query embeddings kept in memory (0 disables)")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")

	// Used later for usage/help
	// create a shallow copy of fs (so Usage can be called safely without mutating caller)
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setDur := func(name string, dst *time.Duration) {
		if fs.Changed(name) {
			v, _ := fs.GetDuration(name)
			*dst = v
		}
	}
	setSlice := func(name string, dst *[]string) {
		if fs.Changed(name) {
			v, _ := fs.GetStringSlice(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("provider-embedding-model", &c.EmbedModel)
	setStr("provider-chat-model", &c.ChatModel)
	setStr("provider-project-id", &c.ProjectID)
	setStr("provider-location", &c.Location)

	setInt("embed-dim", &c.Dim)
	setDur("request-timeout", &c.RequestTimeout)

	setStr("index-dir", &c.IndexDir)
	setSlice("documents", &c.Documents)
	setStr("documents-dir", &c.DocumentsDir)
	setInt("chunk-size", &c.ChunkSize)
	setInt("chunk-overlap", &c.ChunkOverlap)
	setInt("top-k", &c.TopK)
	setInt("query-cache-size", &c.QueryCacheSize)

	setStr("log-level", &c.LogLevel)
}

func setDefaults(c *Specification) {
	c.LogLevel = "info"
	c.Provider = "stub"
	c.Dim = 0
	c.Location = "us-central1"
	c.RequestTimeout = ai.DefaultTimeout
	c.IndexDir = "data/index"
	c.Documents = []string{"data/GDPR.pdf", "data/EU_AI_Act.pdf"}
	c.ChunkSize = 1000
	c.ChunkOverlap = 200
	c.TopK = 5
	c.QueryCacheSize = ai.DefaultQueryCacheSize
}
