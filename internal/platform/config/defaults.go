package config

import "time"

// DefaultConfig returns the configuration used when no file exists yet.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:    "0.0.0.0",
			Port:  8000,
			Token: "your_token",
			Auth: AuthConfig{
				Enabled:  false,
				Secret:   "change_me",
				TokenTTL: Duration(time.Hour),
			},
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled:   true,
			Port:      8080,
			StaticDir: "./web",
			Websocket: "ws://your_ip:8000/ws",
		},
		Transport: TransportConfig{
			WebSocket: WebSocketConfig{
				Enabled: true,
				IP:      "0.0.0.0",
				Port:    8000,
			},
		},
		Policy: DefaultPolicy(),
		Audit: AuditConfig{
			Sink:   "sqlite",
			SQLite: AuditSQLiteSink{DSN: "data/clinivoice.db"},
			Redis: AuditRedisSink{
				Addr:   "127.0.0.1:6379",
				Stream: "clinivoice:audit",
			},
		},
		Selected: SelectedConfig{
			ASR: "stream",
			TTS: "edge",
			NLP: "rules",
		},
		ASR: map[string]ASRConfig{
			"stream": {
				Type:       "stream",
				WSURL:      "wss://your_asr_endpoint/v1/stream",
				SampleRate: 16000,
			},
		},
		TTS: map[string]TTSConfig{
			"edge": {
				Type:      "edge",
				Voice:     "en-US-JennyNeural",
				Format:    "mp3",
				OutputDir: "data/tts",
				Speed:     1.0,
			},
		},
		NLP: map[string]NLPConfig{
			"rules": {
				Type: "rules",
			},
			"openai": {
				Type:        "openai",
				ModelName:   "gpt-4o-mini",
				BaseURL:     "https://api.openai.com/v1",
				Temperature: 0.0,
			},
		},
	}
}

// DefaultPolicy is the speaker-safe default profile: PHI blocked, strict
// half-duplex, 5s confirmation window, short provider-mode lease.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		SpeakerSafeDefault:         true,
		BargeInEnabled:             false,
		ConfirmationTimeout:        Duration(5 * time.Second),
		ProviderModeTTL:            Duration(5 * time.Minute),
		PHIReadbackRequiresConfirm: true,
		PHICategories: []string{
			"identifier", "name", "mrn", "dob", "ssn",
			"dose", "diagnosis_sensitive", "contact",
		},
		PlaceholderSentence: "I'll display that on screen.",
	}
}
