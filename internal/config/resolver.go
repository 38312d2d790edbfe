package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
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

const (
	DefaultDBPath    = "~/.rescuelog/rescuelog.db"
	DefaultWindow    = "30m"
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "console"
	DefaultAddr      = "127.0.0.1:5055"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries the CLI flag values; empty means unset.
type ResolveOptions struct {
	ConfigPath   string
	CLIDBPath    string
	CLIAliases   string
	CLIWeights   string
	CLIWindow    string
	CLIWorkers   string
	CLILogLevel  string
	CLILogFormat string
	CLIAddr      string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath      ResolvedValue `json:"db_path"`
	AliasesPath ResolvedValue `json:"aliases_path"`
	WeightsPath ResolvedValue `json:"weights_path"`
	Window      ResolvedValue `json:"window"`
	Workers     ResolvedValue `json:"workers"`
	LogLevel    ResolvedValue `json:"log_level"`
	LogFormat   ResolvedValue `json:"log_format"`
	Addr        ResolvedValue `json:"addr"`
}

type fileConfig struct {
	DBPath  string `yaml:"db_path"`
	Aliases string `yaml:"aliases"`
	Weights string `yaml:"weights"`
	Extract struct {
		Window  string `yaml:"window"`
		Workers string `yaml:"workers"`
	} `yaml:"extract"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Serve struct {
		Addr string `yaml:"addr"`
	} `yaml:"serve"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rescuelog", "config.yaml")
}

// LoadDotEnv loads .env.local and then .env from dir into the process
// environment. Variables that are already set are never overridden, so the
// earlier file wins. Missing files are skipped. Returns the files loaded.
func LoadDotEnv(dir string) ([]string, error) {
	var loaded []string
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("loading %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// ResolveConfig layers defaults, the config file, RESCUELOG_* environment
// variables and CLI flags, later layers winning. A missing config file is
// not an error.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}
	path = expandUserPath(path)

	out := ResolvedConfig{ConfigPath: path}
	apply(&out.DBPath, DefaultDBPath, SourceDefault, "built-in default")
	apply(&out.Window, DefaultWindow, SourceDefault, "built-in default")
	apply(&out.LogLevel, DefaultLogLevel, SourceDefault, "built-in default")
	apply(&out.LogFormat, DefaultLogFormat, SourceDefault, "built-in default")
	apply(&out.Addr, DefaultAddr, SourceDefault, "built-in default")

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.AliasesPath, cfg.Aliases, SourceConfig, path)
		apply(&out.WeightsPath, cfg.Weights, SourceConfig, path)
		apply(&out.Window, cfg.Extract.Window, SourceConfig, path)
		apply(&out.Workers, cfg.Extract.Workers, SourceConfig, path)
		apply(&out.LogLevel, cfg.Log.Level, SourceConfig, path)
		apply(&out.LogFormat, cfg.Log.Format, SourceConfig, path)
		apply(&out.Addr, cfg.Serve.Addr, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "RESCUELOG_DB")
	applyEnv(&out.AliasesPath, "RESCUELOG_ALIASES")
	applyEnv(&out.WeightsPath, "RESCUELOG_WEIGHTS")
	applyEnv(&out.Window, "RESCUELOG_WINDOW")
	applyEnv(&out.Workers, "RESCUELOG_WORKERS")
	applyEnv(&out.LogLevel, "RESCUELOG_LOG_LEVEL")
	applyEnv(&out.LogFormat, "RESCUELOG_LOG_FORMAT")
	applyEnv(&out.Addr, "RESCUELOG_ADDR")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.AliasesPath, opts.CLIAliases, SourceCLI, "--aliases")
	apply(&out.WeightsPath, opts.CLIWeights, SourceCLI, "--weights")
	apply(&out.Window, opts.CLIWindow, SourceCLI, "--window")
	apply(&out.Workers, opts.CLIWorkers, SourceCLI, "--workers")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")
	apply(&out.LogFormat, opts.CLILogFormat, SourceCLI, "--log-format")
	apply(&out.Addr, opts.CLIAddr, SourceCLI, "--addr")

	for _, v := range []*ResolvedValue{&out.DBPath, &out.AliasesPath, &out.WeightsPath} {
		if v.Value != "" {
			v.Value = expandUserPath(v.Value)
		}
	}

	return out, nil
}

// WindowDuration parses the grouping window. A bare number means minutes.
func (r ResolvedConfig) WindowDuration() (time.Duration, error) {
	v := strings.TrimSpace(r.Window.Value)
	if v == "" {
		v = DefaultWindow
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Minute)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid window %q (from %s): %w", r.Window.Value, r.Window.From, err)
	}
	return d, nil
}

// WorkerCount parses the worker count. Zero means one per CPU.
func (r ResolvedConfig) WorkerCount() (int, error) {
	v := strings.TrimSpace(r.Workers.Value)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid workers %q (from %s)", r.Workers.Value, r.Workers.From)
	}
	return n, nil
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
