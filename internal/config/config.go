package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Source        Source        `yaml:"source"`
	Document      Document      `yaml:"document"`
	Summarization Summarization `yaml:"summarization"`
	Email         Email         `yaml:"email"`
	HTTP          HTTP          `yaml:"http"`
	Pipeline      Pipeline      `yaml:"pipeline"`
	Output        Output        `yaml:"output"`
	Metrics       Metrics       `yaml:"metrics"`
	Server        Server        `yaml:"server"`
	Logging       Logging       `yaml:"logging"`
}

type Source struct {
	URL          string `yaml:"url"           env:"MS_URL"               env-default:"https://www.gov.br/saude/pt-br/centrais-de-conteudo/publicacoes/boletins/epidemiologicos/ultimos"`
	Limit        int    `yaml:"limit"         env:"CHECK_LIMIT"          env-default:"20"`
	Format       string `yaml:"format"        env:"SOURCE_FORMAT"        env-default:"auto"`
	ItemSelector string `yaml:"item_selector" env:"SOURCE_ITEM_SELECTOR" env-default:"h2"`
	Timezone     string `yaml:"timezone"      env:"SOURCE_TIMEZONE"      env-default:"America/Sao_Paulo"`
}

type Document struct {
	MaxPages   int      `yaml:"max_pages"   env:"DOCUMENT_MAX_PAGES"   env-default:"6"`
	MaxChars   int      `yaml:"max_chars"   env:"DOCUMENT_MAX_CHARS"   env-default:"20000"`
	LinkLabels []string `yaml:"link_labels" env:"DOCUMENT_LINK_LABELS" env-default:"arquivo" env-separator:","`
}

type Summarization struct {
	Provider    string        `yaml:"provider"     env:"LLM_PROVIDER"   env-default:"none"`
	OpenAIModel string        `yaml:"openai_model" env:"OPENAI_MODEL"   env-default:"gpt-4o-mini"`
	APIKey      string        `yaml:"api_key"      env:"OPENAI_API_KEY"`
	Model       string        `yaml:"model"        env:"OLLAMA_MODEL"   env-default:"qwen2.5:7b"`
	OllamaURL   string        `yaml:"ollama_url"   env:"OLLAMA_URL"     env-default:"http://localhost:11434"`
	MaxTokens   int           `yaml:"max_tokens"   env:"LLM_MAX_TOKENS" env-default:"500"`
	Timeout     time.Duration `yaml:"timeout"      env:"LLM_TIMEOUT"    env-default:"90s"`
}

type Email struct {
	SendGridAPIKey string        `yaml:"sendgrid_api_key" env:"SENDGRID_API_KEY"`
	To             string        `yaml:"to"               env:"REPORT_TO_EMAIL"`
	From           string        `yaml:"from"             env:"REPORT_FROM_EMAIL"     env-default:"noreply@domain.com"`
	SubjectPrefix  string        `yaml:"subject_prefix"   env:"REPORT_SUBJECT_PREFIX" env-default:"[MS]"`
	Timeout        time.Duration `yaml:"timeout"          env:"EMAIL_TIMEOUT"         env-default:"60s"`
}

type HTTP struct {
	Timeout              time.Duration `yaml:"timeout"                env:"HTTP_TIMEOUT"       env-default:"60s"`
	RequestsPerSecond    float64       `yaml:"requests_per_second"    env:"HTTP_RPS"           env-default:"2"`
	AllowPrivateNetworks bool          `yaml:"allow_private_networks" env:"HTTP_ALLOW_PRIVATE"`
	UserAgent            string        `yaml:"user_agent"             env:"HTTP_USER_AGENT"    env-default:"BulletinWatch/1.0"`
}

type Pipeline struct {
	Workers int `yaml:"workers" env:"PIPELINE_WORKERS" env-default:"4"`
}

type Output struct {
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
	DBPath  string `yaml:"db_path"  env:"DB_PATH"`
}

type Metrics struct {
	Textfile string `yaml:"textfile" env:"METRICS_TEXTFILE"`
}

type Server struct {
	Port int `yaml:"port" env:"SERVER_PORT" env-default:"8000"`
}

type Logging struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"INFO"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// ConfigDir returns the XDG config directory for bulletinwatch.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "bulletinwatch")
}

// DataDir returns the XDG data directory for bulletinwatch.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "bulletinwatch")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/bulletinwatch/config.yaml > ./config.yaml.
// Returns an empty path when no file exists; the environment alone is a
// valid configuration.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", nil
}

// Load reads a config YAML file (if path is non-empty) and applies
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return parse(data)
}

// parse parses YAML bytes into a Config. Environment variables override
// file values; env-default tags fill whatever is still unset.
func parse(data []byte) (*Config, error) {
	cfg := &Config{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Source.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source.url must be an absolute http(s) URL, got %q", c.Source.URL)
	}
	if c.Source.Limit <= 0 {
		return fmt.Errorf("source.limit must be positive, got %d", c.Source.Limit)
	}
	switch strings.ToLower(c.Source.Format) {
	case "auto", "html", "feed":
	default:
		return fmt.Errorf("source.format must be auto, html or feed, got %q", c.Source.Format)
	}
	switch strings.ToLower(c.Summarization.Provider) {
	case "none", "openai", "ollama":
	default:
		return fmt.Errorf("summarization.provider must be none, openai or ollama, got %q", c.Summarization.Provider)
	}
	if c.Document.MaxPages <= 0 {
		return fmt.Errorf("document.max_pages must be positive, got %d", c.Document.MaxPages)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetDBPath returns the SQLite file path.
func (c *Config) GetDBPath() string {
	if c.Output.DBPath != "" {
		return c.Output.DBPath
	}
	return filepath.Join(c.GetDataDir(), "bulletinwatch.db")
}

// Location returns the time zone used to interpret listing timestamps.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Source.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
