package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PONDER_TTS_MODE", "mock")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.TTS.BaseURL != "inf.useponder.ai" {
		t.Fatalf("expected default base url, got %q", cfg.TTS.BaseURL)
	}
	if cfg.TTS.Speed != 1.0 {
		t.Fatalf("expected default speed 1.0, got %v", cfg.TTS.Speed)
	}
}

func TestValidateWSRequiresCredentials(t *testing.T) {
	// The default mode is ws with no api key or voice id.
	_, err := Load("")
	if err == nil {
		t.Fatal("expected validation error for missing api key")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PONDER_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("PONDER_BUS_USERNAME", "alice")
	t.Setenv("PONDER_BUS_PASSWORD", "secret")
	t.Setenv("PONDER_BUS_TLS_INSECURE", "true")
	t.Setenv("PONDER_TTS_API_KEY", "pk-test")
	t.Setenv("PONDER_TTS_VOICE_ID", "voice-1")
	t.Setenv("PONDER_TTS_BASE_URL", "tts.internal.example.com")
	t.Setenv("PONDER_TTS_SAMPLE_RATE", "16000")
	t.Setenv("PONDER_TTS_SEED", "42")
	t.Setenv("PONDER_UTTERANCE_LOG_PATH", "./tmp.db")
	t.Setenv("PONDER_UTTERANCE_LOG_RETENTION_MODE", "persistent")
	t.Setenv("PONDER_UTTERANCE_LOG_RETENTION_DAYS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.TTS.APIKey != "pk-test" || cfg.TTS.VoiceID != "voice-1" {
		t.Fatalf("expected tts credential overrides")
	}
	if cfg.TTS.BaseURL != "tts.internal.example.com" {
		t.Fatalf("expected base url override, got %q", cfg.TTS.BaseURL)
	}
	if cfg.TTS.SampleRate != 16000 {
		t.Fatalf("expected sample rate override, got %d", cfg.TTS.SampleRate)
	}
	if cfg.TTS.Seed != 42 {
		t.Fatalf("expected seed override, got %d", cfg.TTS.Seed)
	}
	if cfg.UtteranceLog.Path != "./tmp.db" {
		t.Fatalf("expected utterance log path override")
	}
	if cfg.UtteranceLog.RetentionMode != "persistent" {
		t.Fatalf("expected retention mode override")
	}
	if cfg.UtteranceLog.RetentionDays != 7 {
		t.Fatalf("expected retention days override")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	t.Setenv("PONDER_TTS_MODE", "mock")
	t.Setenv("PONDER_TELEMETRY_LOG_LEVEL", "verbose")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	t.Setenv("PONDER_TTS_MODE", "cloud")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown tts mode")
	}
}
