package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Duration is a time.Duration stored as a Go duration string ("5m", "24h").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Bare numbers are seconds.
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("duration must be a string like \"5m\": %s", data)
		}
		*d = Duration(n * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Agents   struct {
		Host         string `json:"host"`
		SQLPort      int    `json:"sql_port"`
		OptimizePort int    `json:"optimize_port"`
	} `json:"agents"`
	Aggregator struct {
		Port              int      `json:"port"`
		SchemaTTL         Duration `json:"schema_ttl"`
		JobRetention      Duration `json:"job_retention"`
		SweepSchedule     string   `json:"sweep_schedule"`
		MaxConcurrentJobs int      `json:"max_concurrent_jobs"`
	} `json:"aggregator"`
	LLM struct {
		Provider            string   `json:"provider"`
		BaseURL             string   `json:"base_url"`
		APIKey              string   `json:"api_key"`
		Model               string   `json:"model"`
		MaxTokens           int      `json:"max_tokens"`
		Temperature         float64  `json:"temperature"`
		OptimizeTemperature float64  `json:"optimize_temperature"`
		Timeout             Duration `json:"timeout"`
		PromptBudget        int      `json:"prompt_budget"`
	} `json:"llm"`
	Database struct {
		Server                 string `json:"server"`
		Port                   int    `json:"port"`
		User                   string `json:"user"`
		Password               string `json:"password"`
		Database               string `json:"database"`
		Schema                 string `json:"schema"`
		Encrypt                string `json:"encrypt"`
		TrustServerCertificate bool   `json:"trust_server_certificate"`
		MaxOpenConns           int    `json:"max_open_conns"`
		SampleRows             int    `json:"sample_rows"`
	} `json:"database"`
	Journal struct {
		Enabled bool `json:"enabled"`
	} `json:"journal"`
	Metrics struct {
		Enabled bool `json:"enabled"`
	} `json:"metrics"`
}

// DefaultPath is where the config lives when --config is not given.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".sqlagents", "config.json")
}

// Defaults returns the configuration used for keys missing from the file.
func Defaults() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".sqlagents"),
		LogLevel: "info",
	}
	cfg.Agents.Host = "localhost"
	cfg.Agents.SQLPort = 41242
	cfg.Agents.OptimizePort = 41243
	cfg.Aggregator.Port = 3000
	cfg.Aggregator.SchemaTTL = Duration(5 * time.Minute)
	cfg.Aggregator.JobRetention = Duration(24 * time.Hour)
	cfg.Aggregator.SweepSchedule = "@every 10m"
	cfg.Aggregator.MaxConcurrentJobs = 4
	cfg.LLM.Provider = "ollama"
	cfg.LLM.BaseURL = "http://localhost:11434"
	cfg.LLM.Model = "llama3:8b"
	cfg.LLM.OptimizeTemperature = 0.3
	cfg.LLM.PromptBudget = 6000
	cfg.Database.Port = 1433
	cfg.Database.Schema = "dbo"
	cfg.Database.SampleRows = 2
	cfg.Database.MaxOpenConns = 4
	cfg.Journal.Enabled = true
	cfg.Metrics.Enabled = true
	return cfg
}

// Load reads the config at path on top of Defaults, writing the defaults when
// the file does not exist yet. A .env file in the working directory is loaded
// first; environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	// Missing .env is fine.
	_ = godotenv.Load()

	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides cfg from the process environment (highest precedence).
func applyEnv(cfg *Config) error {
	ports := []struct {
		name string
		dst  *int
	}{
		{"MS_SQL_AGENT_PORT", &cfg.Agents.SQLPort},
		{"MS_SQL_OPTIMIZE_QUERY_AGENT_PORT", &cfg.Agents.OptimizePort},
		{"AGGREGATOR_PORT", &cfg.Aggregator.Port},
		{"MSSQL_PORT", &cfg.Database.Port},
	}
	for _, p := range ports {
		v := os.Getenv(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("invalid %s: %q", p.name, v)
		}
		*p.dst = n
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"OLLAMA_MODEL", &cfg.LLM.Model},
		{"OPENAI_API_KEY", &cfg.LLM.APIKey},
		{"MSSQL_SERVER", &cfg.Database.Server},
		{"MSSQL_USER", &cfg.Database.User},
		{"MSSQL_PASSWORD", &cfg.Database.Password},
		{"MSSQL_DATABASE", &cfg.Database.Database},
	}
	for _, s := range strs {
		if v := os.Getenv(s.name); v != "" {
			*s.dst = v
		}
	}

	switch cfg.LLM.Provider {
	case "ollama":
		if host := os.Getenv("OLLAMA_HOST"); host != "" {
			cfg.LLM.BaseURL = host
		}
	case "openai":
		if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
			cfg.LLM.BaseURL = baseURL
		}
	}
	return nil
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func writeDefaults(path string, cfg *Config) error {
	if err := Save(path, cfg); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to a nested generic map via its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues flattens cfg into dot-separated keys, masking secrets when mask is set.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads one dot-separated key from the config file at path.
func GetValue(path, key string) (any, error) {
	flat, err := readFlat(path)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue writes one dot-separated key into the config file at path. raw is
// converted to the type of the key's default value: string keys keep raw as
// is, numeric and boolean keys parse it. Unknown keys and values the config
// could not load back are rejected without touching the file.
func SetValue(path, key, raw string) error {
	known, err := ListValues(Defaults(), false)
	if err != nil {
		return err
	}
	def, ok := known[key]
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	v, err := coerce(key, def, raw)
	if err != nil {
		return err
	}

	flat, err := readFlat(path)
	if err != nil {
		return err
	}
	flat[key] = v

	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var check Config
	if err := json.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return writeFile(path, append(data, '\n'))
}

func coerce(key string, def any, raw string) (any, error) {
	switch def.(type) {
	case string:
		return raw, nil
	case float64:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s expects a number, got %q", key, raw)
		}
		return n, nil
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s expects true or false, got %q", key, raw)
		}
		return b, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw, nil
	}
	return v, nil
}

func readFlat(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return Flatten(m), nil
}
