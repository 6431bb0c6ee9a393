package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that yaml reads from strings like "5s"
// or from plain nanosecond integers.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	return fmt.Errorf("invalid duration %q", value.Value)
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Web       WebConfig       `yaml:"web"`
	Transport TransportConfig `yaml:"transport"`
	Policy    PolicyConfig    `yaml:"policy"`
	Audit     AuditConfig     `yaml:"audit"`
	Selected  SelectedConfig  `yaml:"selected_module"`
	ASR       map[string]ASRConfig `yaml:"ASR"`
	TTS       map[string]TTSConfig `yaml:"TTS"`
	NLP       map[string]NLPConfig `yaml:"NLP"`
}

type ServerConfig struct {
	IP    string     `yaml:"ip"`
	Port  int        `yaml:"port"`
	Token string     `yaml:"token"`
	Auth  AuthConfig `yaml:"auth"`
}

type AuthConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Secret   string        `yaml:"secret"`
	TokenTTL Duration `yaml:"token_ttl"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type WebConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
	Websocket string `yaml:"websocket"`
}

type TransportConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
}

type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	IP      string `yaml:"ip"`
	Port    int    `yaml:"port"`
}

// PolicyConfig is the immutable audio-safety policy handed to every
// session at creation. No component reads ambient global state; each
// session carries its own copy.
type PolicyConfig struct {
	SpeakerSafeDefault         bool          `yaml:"speaker_safe_default"`
	BargeInEnabled             bool          `yaml:"barge_in_enabled"`
	ConfirmationTimeout        Duration      `yaml:"confirmation_timeout"`
	ProviderModeTTL            Duration      `yaml:"provider_mode_ttl"`
	PHIReadbackRequiresConfirm bool          `yaml:"phi_readback_requires_confirm"`
	// PHICategories is configurable data, not an enum: the canonical
	// list of sensitive categories is still in flux upstream.
	PHICategories []string `yaml:"phi_categories"`
	PlaceholderSentence string `yaml:"placeholder_sentence"`
}

type AuditConfig struct {
	Sink   string           `yaml:"sink"` // sqlite | redis | memory, comma-separated for fan-out
	SQLite AuditSQLiteSink  `yaml:"sqlite,omitempty"`
	Redis  AuditRedisSink   `yaml:"redis,omitempty"`
}

type AuditSQLiteSink struct {
	DSN string `yaml:"dsn,omitempty"`
}

type AuditRedisSink struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Stream   string `yaml:"stream,omitempty"`
}

type SelectedConfig struct {
	ASR string `yaml:"ASR"`
	TTS string `yaml:"TTS"`
	NLP string `yaml:"NLP"`
}

type ASRConfig struct {
	Type       string `yaml:"type"`
	WSURL      string `yaml:"ws_url"`
	APIKey     string `yaml:"api_key"`
	SampleRate int    `yaml:"sample_rate"`
	Extra      map[string]interface{} `yaml:",inline"`
}

type TTSConfig struct {
	Type      string  `yaml:"type"`
	Voice     string  `yaml:"voice"`
	Format    string  `yaml:"format"`
	OutputDir string  `yaml:"output_dir"`
	Speed     float32 `yaml:"speed"`
}

type NLPConfig struct {
	Type      string  `yaml:"type"`
	ModelName string  `yaml:"model_name"`
	BaseURL   string  `yaml:"url"`
	APIKey    string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
}
