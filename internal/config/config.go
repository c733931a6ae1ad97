package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName  string             `yaml:"runtime_name"`
	Environment  string             `yaml:"environment"`
	HTTP         HTTPConfig         `yaml:"http"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Bus          BusConfig          `yaml:"bus"`
	TTS          TTSConfig          `yaml:"tts"`
	UtteranceLog UtteranceLogConfig `yaml:"utterance_log"`
	Bridge       BridgeConfig       `yaml:"bridge"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type TTSConfig struct {
	Mode           string  `yaml:"mode"` // ws, exec, mock
	APIKey         string  `yaml:"api_key"`
	VoiceID        string  `yaml:"voice_id"`
	BaseURL        string  `yaml:"base_url"`
	Command        string  `yaml:"command"`
	SampleRate     int     `yaml:"sample_rate"`
	Channels       int     `yaml:"channels"`
	Language       string  `yaml:"language"`
	OutputFormat   string  `yaml:"output_format"`
	VoiceEngine    string  `yaml:"voice_engine"`
	Speed          float64 `yaml:"speed"`
	Seed           int64   `yaml:"seed"`
	ConnectTimeout int     `yaml:"connect_timeout_ms"`
}

type UtteranceLogConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxUtterances int    `yaml:"max_utterances"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BridgeConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Default() Config {
	return Config{
		RuntimeName: "ponder-stream",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		TTS: TTSConfig{
			Mode:           "ws",
			BaseURL:        "inf.useponder.ai",
			SampleRate:     24000,
			Channels:       1,
			Language:       "english",
			OutputFormat:   "wav",
			VoiceEngine:    "Ponder",
			Speed:          1.0,
			ConnectTimeout: 5000,
		},
		UtteranceLog: UtteranceLogConfig{
			Path:          "./data/utterances.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxUtterances: 10000,
		},
		Bridge: BridgeConfig{
			Enabled: true,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "PONDER_RUNTIME_NAME")
	overrideString(&cfg.Environment, "PONDER_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PONDER_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PONDER_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PONDER_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PONDER_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PONDER_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "PONDER_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PONDER_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "PONDER_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PONDER_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PONDER_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PONDER_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "PONDER_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "PONDER_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.TTS.Mode, "PONDER_TTS_MODE")
	overrideString(&cfg.TTS.APIKey, "PONDER_TTS_API_KEY")
	overrideString(&cfg.TTS.VoiceID, "PONDER_TTS_VOICE_ID")
	overrideString(&cfg.TTS.BaseURL, "PONDER_TTS_BASE_URL")
	overrideString(&cfg.TTS.Command, "PONDER_TTS_COMMAND")
	overrideInt(&cfg.TTS.SampleRate, "PONDER_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "PONDER_TTS_CHANNELS")
	overrideString(&cfg.TTS.Language, "PONDER_TTS_LANGUAGE")
	overrideString(&cfg.TTS.OutputFormat, "PONDER_TTS_OUTPUT_FORMAT")
	overrideString(&cfg.TTS.VoiceEngine, "PONDER_TTS_VOICE_ENGINE")
	overrideFloat(&cfg.TTS.Speed, "PONDER_TTS_SPEED")
	overrideInt64(&cfg.TTS.Seed, "PONDER_TTS_SEED")
	overrideInt(&cfg.TTS.ConnectTimeout, "PONDER_TTS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.UtteranceLog.Path, "PONDER_UTTERANCE_LOG_PATH")
	overrideString(&cfg.UtteranceLog.RetentionMode, "PONDER_UTTERANCE_LOG_RETENTION_MODE")
	overrideInt(&cfg.UtteranceLog.RetentionDays, "PONDER_UTTERANCE_LOG_RETENTION_DAYS")
	overrideInt(&cfg.UtteranceLog.MaxUtterances, "PONDER_UTTERANCE_LOG_MAX_UTTERANCES")
	overrideBool(&cfg.UtteranceLog.VacuumOnStart, "PONDER_UTTERANCE_LOG_VACUUM_ON_START")
	overrideBool(&cfg.Bridge.Enabled, "PONDER_BRIDGE_ENABLED")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.TTS.Mode {
	case "ws", "exec", "mock":
	default:
		return errors.New("tts.mode must be one of ws|exec|mock")
	}
	if cfg.TTS.Mode == "ws" {
		if cfg.TTS.APIKey == "" {
			return errors.New("tts.api_key must be set when mode=ws")
		}
		if cfg.TTS.VoiceID == "" {
			return errors.New("tts.voice_id must be set when mode=ws")
		}
		if cfg.TTS.BaseURL == "" {
			return errors.New("tts.base_url must not be empty when mode=ws")
		}
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	if cfg.TTS.Speed <= 0 {
		return errors.New("tts.speed must be positive")
	}
	switch cfg.UtteranceLog.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("utterance_log.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.UtteranceLog.RetentionMode != "ephemeral" && cfg.UtteranceLog.Path == "" {
		return errors.New("utterance_log.path must not be empty")
	}
	if cfg.UtteranceLog.RetentionDays < 0 {
		return errors.New("utterance_log.retention_days must be >= 0")
	}
	switch cfg.Telemetry.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	return nil
}
