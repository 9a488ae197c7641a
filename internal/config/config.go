package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/chaz8081/thermobill/internal/ble"
	"github.com/chaz8081/thermobill/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Printer   PrinterConfig  `yaml:"printer"`
	Transmit  TransmitConfig `yaml:"transmit"`
	Raster    RasterConfig   `yaml:"raster"`
	Receipt   ReceiptConfig  `yaml:"receipt"`
	Journal   JournalConfig  `yaml:"journal"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"` // "console" or "json"
}

// PrinterConfig holds the printer link settings.
type PrinterConfig struct {
	Address              string        `yaml:"address"`
	Backend              string        `yaml:"backend"` // "tinygo" or "goble"
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	ScanDuration         time.Duration `yaml:"scan_duration"`
	AutoReconnect        bool          `yaml:"auto_reconnect"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	LivenessInterval     time.Duration `yaml:"liveness_interval"`
}

// TransmitConfig selects how the command stream is chunked.
type TransmitConfig struct {
	Profile    string        `yaml:"profile"` // "fast", "safe" or "custom"
	ChunkSize  int           `yaml:"chunk_size"`
	ChunkDelay time.Duration `yaml:"chunk_delay"`
}

// RasterConfig holds image encoding settings.
type RasterConfig struct {
	Width     int    `yaml:"width"`
	Strategy  string `yaml:"strategy"`  // "raster" or "band"
	Luminance string `yaml:"luminance"` // "precise", "intshift" or "green"
	Dither    bool   `yaml:"dither"`
	FeedLines int    `yaml:"feed_lines"`
	// MaxBlockHeight splits tall raster images into several blocks; 0
	// sends one block.
	MaxBlockHeight int `yaml:"max_block_height"`
}

// ReceiptConfig holds receipt layout settings.
type ReceiptConfig struct {
	Company       string `yaml:"company"`
	Collector     string `yaml:"collector"`
	Locale        string `yaml:"locale"` // "hy" or "en"
	FontPath      string `yaml:"font_path"`
	FontSize      int    `yaml:"font_size"`
	Transliterate bool   `yaml:"transliterate"`
	CodePage      string `yaml:"code_page"`
	QR            bool   `yaml:"qr"`
}

// JournalConfig holds print journal settings.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "thermobill")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with the field-tested defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Printer: PrinterConfig{
			Address:              "10:22:33:50:59:09",
			Backend:              "tinygo",
			ConnectTimeout:       10 * time.Second,
			ScanDuration:         5 * time.Second,
			AutoReconnect:        true,
			MaxReconnectAttempts: 3,
			ReconnectDelay:       2 * time.Second,
			LivenessInterval:     50 * time.Second,
		},
		Transmit: TransmitConfig{
			Profile: "fast",
		},
		Raster: RasterConfig{
			Width:     384,
			Strategy:  "raster",
			Luminance: "precise",
			FeedLines: 3,
		},
		Receipt: ReceiptConfig{
			Company:       "FNET Telecom",
			Locale:        "hy",
			FontSize:      22,
			Transliterate: true,
			CodePage:      "cp437",
			QR:            true,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(home, ".local", "share", "thermobill", "journal.db"),
		},
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Journal.Path = expandTilde(cfg.Journal.Path)
	cfg.Receipt.FontPath = expandTilde(cfg.Receipt.FontPath)

	return cfg, nil
}

// ApplyEnv loads dotenv (when it exists) into the environment and then
// applies THERMOBILL_* overrides. Variables already set in the
// environment win over the dotenv file.
func (c *Config) ApplyEnv(dotenv string) error {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", dotenv, err)
		}
	}

	if v, ok := os.LookupEnv("THERMOBILL_PRINTER_ADDRESS"); ok {
		c.Printer.Address = v
	}
	if v, ok := os.LookupEnv("THERMOBILL_PRINTER_BACKEND"); ok {
		c.Printer.Backend = v
	}
	if v, ok := os.LookupEnv("THERMOBILL_TRANSMIT_PROFILE"); ok {
		c.Transmit.Profile = v
	}
	if v, ok := os.LookupEnv("THERMOBILL_CHUNK_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("THERMOBILL_CHUNK_SIZE: %w", err)
		}
		c.Transmit.ChunkSize = n
	}
	if v, ok := os.LookupEnv("THERMOBILL_COLLECTOR"); ok {
		c.Receipt.Collector = v
	}
	if v, ok := os.LookupEnv("THERMOBILL_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv("THERMOBILL_JOURNAL_PATH"); ok {
		c.Journal.Path = expandTilde(v)
	}
	return nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Printer.Address == "" {
		return fmt.Errorf("printer.address must not be empty")
	}

	switch c.Printer.Backend {
	case "tinygo", "goble":
	default:
		return fmt.Errorf("printer.backend must be \"tinygo\" or \"goble\", got %q", c.Printer.Backend)
	}

	if c.Printer.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("printer.max_reconnect_attempts must be > 0")
	}

	if c.Printer.ReconnectDelay < 0 || c.Printer.LivenessInterval < 0 || c.Printer.ConnectTimeout < 0 {
		return fmt.Errorf("printer durations must not be negative")
	}

	if _, err := c.Transmit.Resolve(); err != nil {
		return err
	}

	if c.Raster.Width <= 0 {
		return fmt.Errorf("raster.width must be > 0")
	}

	switch c.Raster.Strategy {
	case "raster", "band":
	default:
		return fmt.Errorf("raster.strategy must be \"raster\" or \"band\", got %q", c.Raster.Strategy)
	}

	switch c.Raster.Luminance {
	case "precise", "intshift", "green":
	default:
		return fmt.Errorf("raster.luminance must be precise, intshift, or green, got %q", c.Raster.Luminance)
	}

	if c.Raster.FeedLines < 0 || c.Raster.MaxBlockHeight < 0 {
		return fmt.Errorf("raster.feed_lines and raster.max_block_height must not be negative")
	}

	switch c.Receipt.Locale {
	case "hy", "en":
	default:
		return fmt.Errorf("receipt.locale must be \"hy\" or \"en\", got %q", c.Receipt.Locale)
	}

	if c.Receipt.FontSize <= 0 {
		return fmt.Errorf("receipt.font_size must be > 0")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path must not be empty when the journal is enabled")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be \"console\" or \"json\", got %q", c.LogFormat)
	}

	return nil
}

// Resolve returns the transmit options for the configured profile.
// chunk_size and chunk_delay override the named profile when set and are
// required for "custom".
func (t TransmitConfig) Resolve() (ble.TransmitOptions, error) {
	if t.ChunkSize < 0 || t.ChunkDelay < 0 {
		return ble.TransmitOptions{}, fmt.Errorf("transmit.chunk_size and transmit.chunk_delay must not be negative")
	}
	if t.Profile == "custom" {
		if t.ChunkSize == 0 {
			return ble.TransmitOptions{}, fmt.Errorf("transmit.chunk_size must be > 0 for the custom profile")
		}
		return ble.TransmitOptions{ChunkSize: t.ChunkSize, Delay: t.ChunkDelay}, nil
	}

	p, err := ble.LookupProfile(t.Profile)
	if err != nil {
		return ble.TransmitOptions{}, fmt.Errorf("transmit.profile must be fast, safe, or custom, got %q", t.Profile)
	}
	opts := p.Options()
	if t.ChunkSize > 0 {
		opts.ChunkSize = t.ChunkSize
	}
	if t.ChunkDelay > 0 {
		opts.Delay = t.ChunkDelay
	}
	return opts, nil
}

// ManagerOptions maps the printer settings onto connection manager options.
func (p PrinterConfig) ManagerOptions() ble.ManagerOptions {
	return ble.ManagerOptions{
		AutoReconnect:    p.AutoReconnect,
		MaxAttempts:      p.MaxReconnectAttempts,
		ReconnectDelay:   p.ReconnectDelay,
		LivenessInterval: p.LivenessInterval,
		ConnectTimeout:   p.ConnectTimeout,
	}
}

// ParseLogLevel converts a log level string to a zap level. Unknown
// values default to info.
func ParseLogLevel(s string) zapcore.Level {
	level, err := logging.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// WriteDefault writes a commented starter config to the default path. It
// returns the path written, or "" when a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultYAML), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

const defaultYAML = `# thermobill configuration

printer:
  address: "10:22:33:50:59:09"
  backend: tinygo           # tinygo or goble (Linux HCI). tinygo cannot read
                            # GATT properties: unknown characteristics outside
                            # the standard services are assumed writable with
                            # response; goble reports the real bits
  connect_timeout: 10s
  scan_duration: 5s
  auto_reconnect: true
  max_reconnect_attempts: 3
  reconnect_delay: 2s
  liveness_interval: 50s

transmit:
  profile: fast             # fast (200 bytes), safe (20 bytes, 10ms) or custom
  # chunk_size: 100
  # chunk_delay: 20ms

raster:
  width: 384
  strategy: raster          # raster (GS v 0) or band (ESC *)
  luminance: precise        # precise, intshift or green
  dither: false
  feed_lines: 3
  max_block_height: 0

receipt:
  company: "FNET Telecom"
  collector: ""
  locale: hy                # hy or en
  font_path: ""             # TTF/OTF with Armenian glyphs; empty transliterates
  font_size: 22
  transliterate: true
  code_page: cp437
  qr: true

journal:
  enabled: true
  path: ~/.local/share/thermobill/journal.db

log_level: info
log_format: console
`

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
