// Package config resolves settings from the config file, the environment and
// command-line flags, in increasing order of precedence. Every value records
// where it came from so `hopital status` can explain it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// Built-in defaults.
const (
	DefaultDBPath       = "~/.hopital/hopital.db"
	DefaultMaxFileSize  = "10MB"
	DefaultLogLevel     = "info"
	DefaultMCPTransport = "stdio"
	DefaultMCPAddr      = ":8080"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries the CLI overrides. Empty fields are ignored.
type ResolveOptions struct {
	ConfigPath      string
	CLIDBPath       string
	CLIPostgresDSN  string
	CLIWorkers      string
	CLIMaxFileSize  string
	CLILogLevel     string
	CLILogFormat    string
	CLIMCPTransport string
	CLIMCPAddr      string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath       ResolvedValue `json:"db_path"`
	PostgresDSN  ResolvedValue `json:"postgres_dsn"`
	Workers      ResolvedValue `json:"workers"`
	MaxFileSize  ResolvedValue `json:"max_file_size"`
	LogLevel     ResolvedValue `json:"log_level"`
	LogFormat    ResolvedValue `json:"log_format"`
	MCPTransport ResolvedValue `json:"mcp_transport"`
	MCPAddr      ResolvedValue `json:"mcp_addr"`
}

// fileConfig mirrors config.yaml. Numeric fields accept either YAML numbers
// or strings ("10MB").
type fileConfig struct {
	DBPath      string `yaml:"db_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	Workers     any    `yaml:"workers"`
	MaxFileSize any    `yaml:"max_file_size"`
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	MCP struct {
		Transport string `yaml:"transport"`
		Addr      string `yaml:"addr"`
	} `yaml:"mcp"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hopital", "config.yaml")
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Existing variables win; missing files are
// ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath:   path,
		DBPath:       ResolvedValue{Value: DefaultDBPath, Source: SourceDefault, From: "built-in default"},
		Workers:      ResolvedValue{Value: cast.ToString(runtime.NumCPU()), Source: SourceDefault, From: "runtime.NumCPU"},
		MaxFileSize:  ResolvedValue{Value: DefaultMaxFileSize, Source: SourceDefault, From: "built-in default"},
		LogLevel:     ResolvedValue{Value: DefaultLogLevel, Source: SourceDefault, From: "built-in default"},
		MCPTransport: ResolvedValue{Value: DefaultMCPTransport, Source: SourceDefault, From: "built-in default"},
		MCPAddr:      ResolvedValue{Value: DefaultMCPAddr, Source: SourceDefault, From: "built-in default"},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.PostgresDSN, cfg.PostgresDSN, SourceConfig, path)
		if cfg.Workers != nil {
			apply(&out.Workers, cast.ToString(cfg.Workers), SourceConfig, path)
		}
		if cfg.MaxFileSize != nil {
			apply(&out.MaxFileSize, cast.ToString(cfg.MaxFileSize), SourceConfig, path)
		}
		apply(&out.LogLevel, cfg.Log.Level, SourceConfig, path)
		apply(&out.LogFormat, cfg.Log.Format, SourceConfig, path)
		apply(&out.MCPTransport, cfg.MCP.Transport, SourceConfig, path)
		apply(&out.MCPAddr, cfg.MCP.Addr, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "HOPITAL_DB")
	applyEnv(&out.PostgresDSN, "HOPITAL_PG_DSN")
	applyEnv(&out.Workers, "HOPITAL_WORKERS")
	applyEnv(&out.MaxFileSize, "HOPITAL_MAX_FILE_SIZE")
	applyEnv(&out.LogLevel, "HOPITAL_LOG_LEVEL")
	applyEnv(&out.LogFormat, "HOPITAL_LOG_FORMAT")
	applyEnv(&out.MCPTransport, "HOPITAL_MCP_TRANSPORT")
	applyEnv(&out.MCPAddr, "HOPITAL_MCP_ADDR")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.PostgresDSN, opts.CLIPostgresDSN, SourceCLI, "--pg")
	apply(&out.Workers, opts.CLIWorkers, SourceCLI, "--workers")
	apply(&out.MaxFileSize, opts.CLIMaxFileSize, SourceCLI, "--max-file-size")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")
	apply(&out.LogFormat, opts.CLILogFormat, SourceCLI, "--log-format")
	apply(&out.MCPTransport, opts.CLIMCPTransport, SourceCLI, "--transport")
	apply(&out.MCPAddr, opts.CLIMCPAddr, SourceCLI, "--addr")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	return out, out.Validate()
}

// Validate checks the values that must parse.
func (r ResolvedConfig) Validate() error {
	if _, err := r.WorkerCount(); err != nil {
		return err
	}
	if _, err := r.MaxFileSizeBytes(); err != nil {
		return err
	}
	switch strings.ToLower(r.MCPTransport.Value) {
	case "", "stdio", "http":
	default:
		return fmt.Errorf("mcp transport %q (from %s) must be stdio or http", r.MCPTransport.Value, r.MCPTransport.From)
	}
	return nil
}

// WorkerCount returns the number of concurrent files, at least 1.
func (r ResolvedConfig) WorkerCount() (int, error) {
	n, err := cast.ToIntE(r.Workers.Value)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("workers %q (from %s) must be a positive integer", r.Workers.Value, r.Workers.From)
	}
	return n, nil
}

// MaxFileSizeBytes parses MaxFileSize ("10MB", "512KiB", "1048576").
func (r ResolvedConfig) MaxFileSizeBytes() (int64, error) {
	n, err := humanize.ParseBytes(r.MaxFileSize.Value)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("max file size %q (from %s) must be a positive size", r.MaxFileSize.Value, r.MaxFileSize.From)
	}
	return int64(n), nil
}

// Redacted returns a copy safe to print: the Postgres password is masked.
func (r ResolvedConfig) Redacted() ResolvedConfig {
	out := r
	out.PostgresDSN.Value = redactDSN(r.PostgresDSN.Value)
	return out
}

func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPass := strings.Cut(creds, ":")
	if !hasPass {
		return dsn
	}
	return scheme + "://" + user + ":***@" + host
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
