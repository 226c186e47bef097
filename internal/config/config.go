package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vango-dev/isomorph/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "isomorph.json"

	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"

	// DefaultOutput is the default build output directory.
	DefaultOutput = "dist"

	// DefaultPublic is the default directory of unprocessed assets.
	DefaultPublic = "public"

	// DefaultAssetPrefix is the URL path assets are served under.
	DefaultAssetPrefix = "/pkg/"

	// DefaultRenderCacheSize is the default number of cached SSR pages.
	DefaultRenderCacheSize = 512
)

// Duration is a time.Duration that reads and writes as "30s" in JSON.
type Duration time.Duration

// UnmarshalJSON accepts a duration string.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON writes the duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents isomorph.json.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Assets  AssetsConfig  `json:"assets"`
	Build   BuildConfig   `json:"build"`
	Session SessionConfig `json:"session"`
	Render  RenderConfig  `json:"render"`
	Log     LogConfig     `json:"log"`

	configPath string
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `json:"shutdownTimeout,omitempty"`

	// H2C enables cleartext HTTP/2 for SSR and asset requests.
	H2C bool `json:"h2c,omitempty"`

	// AllowedOrigins are extra origins permitted to open WebSockets.
	// Same-origin requests are always allowed.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

// AssetsConfig selects where the client bundle is served from.
type AssetsConfig struct {
	// Dir is a local asset directory. Defaults to the build output.
	Dir string `json:"dir,omitempty"`

	// Prefix is the URL prefix assets are mounted at.
	Prefix string `json:"prefix,omitempty"`

	// S3 serves assets from a bucket instead of Dir when Bucket is set.
	S3 S3Config `json:"s3,omitempty"`
}

// S3Config locates assets in S3 or an S3-compatible store. Credentials are
// read from the standard AWS_* environment variables only.
type S3Config struct {
	Bucket    string `json:"bucket,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	Region    string `json:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	PathStyle bool   `json:"pathStyle,omitempty"`

	AccessKeyID     string `json:"-"`
	SecretAccessKey string `json:"-"`
	SessionToken    string `json:"-"`
}

// BuildConfig contains asset build settings.
type BuildConfig struct {
	// Public holds the client bundle and stylesheets before fingerprinting.
	Public string `json:"public,omitempty"`

	// Output is the directory fingerprinted assets are written to.
	Output string `json:"output,omitempty"`
}

// SessionConfig contains live session limits and timeouts.
type SessionConfig struct {
	MaxPerIP     int      `json:"maxPerIP,omitempty"`
	PingInterval Duration `json:"pingInterval,omitempty"`
	ReadTimeout  Duration `json:"readTimeout,omitempty"`
	WriteTimeout Duration `json:"writeTimeout,omitempty"`
	QueueSize    int      `json:"queueSize,omitempty"`

	// RateLimit is inbound messages per second per connection; 0 disables.
	RateLimit float64 `json:"rateLimit,omitempty"`
	RateBurst int     `json:"rateBurst,omitempty"`
}

// RenderConfig contains SSR settings.
type RenderConfig struct {
	// CacheSize is the number of rendered pages kept; 0 uses the default
	// and a negative value disables caching.
	CacheSize int `json:"cacheSize,omitempty"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // text or json
}

// New creates a Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads isomorph.json from dir. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	if !Exists(dir) {
		return New(), nil
	}
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from path. The file must exist.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E121").WithDetailf("no %s at %s", ConfigFileName, path)
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E120").
			WithDetail("failed to parse " + path + ": " + err.Error()).
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON")
	}
	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E120").Wrap(err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New("E120").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path the config was loaded from, if any.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory relative paths resolve against.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return "."
	}
	return filepath.Dir(c.configPath)
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Build.Output == "" {
		c.Build.Output = DefaultOutput
	}
	if c.Build.Public == "" {
		c.Build.Public = DefaultPublic
	}
	if c.Assets.Prefix == "" {
		c.Assets.Prefix = DefaultAssetPrefix
	}
	if c.Assets.S3.Region == "" {
		c.Assets.S3.Region = "us-east-1"
	}

	// Session defaults mirror the transport defaults.
	if c.Session.MaxPerIP == 0 {
		c.Session.MaxPerIP = 100
	}
	if c.Session.PingInterval == 0 {
		c.Session.PingInterval = Duration(30 * time.Second)
	}
	if c.Session.ReadTimeout == 0 {
		c.Session.ReadTimeout = Duration(60 * time.Second)
	}
	if c.Session.WriteTimeout == 0 {
		c.Session.WriteTimeout = Duration(10 * time.Second)
	}
	if c.Session.QueueSize == 0 {
		c.Session.QueueSize = 256
	}
	if c.Session.RateLimit == 0 {
		c.Session.RateLimit = 50
	}
	if c.Session.RateBurst == 0 {
		c.Session.RateBurst = 100
	}

	if c.Render.CacheSize == 0 {
		c.Render.CacheSize = DefaultRenderCacheSize
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if _, port, err := net.SplitHostPort(c.Server.Addr); err != nil || port == "" {
		return errors.New("E122").
			WithDetailf("server.addr %q is not host:port", c.Server.Addr).
			WithSuggestion("Use host:port, e.g. \":8080\"")
	}
	if !strings.HasPrefix(c.Assets.Prefix, "/") {
		return errors.New("E122").WithDetailf("assets.prefix %q must start with /", c.Assets.Prefix)
	}
	if c.Session.QueueSize < 0 {
		return errors.New("E122").WithDetail("session.queueSize must not be negative")
	}
	if c.Session.RateLimit < 0 || c.Session.RateBurst < 0 {
		return errors.New("E122").WithDetail("session.rateLimit and session.rateBurst must not be negative")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return errors.New("E122").WithDetail(err.Error())
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.New("E122").WithDetailf("log.format %q must be text or json", c.Log.Format)
	}
	return nil
}

// AssetDir returns the local asset directory as an absolute or
// config-relative path.
func (c *Config) AssetDir() string {
	dir := c.Assets.Dir
	if dir == "" {
		dir = c.Build.Output
	}
	return c.resolve(dir)
}

// OutputPath returns the build output directory.
func (c *Config) OutputPath() string {
	return c.resolve(c.Build.Output)
}

// PublicPath returns the build input directory.
func (c *Config) PublicPath() string {
	return c.resolve(c.Build.Public)
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir(), path)
}

// Exists reports whether dir contains a config file.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up from startDir to the first directory holding a
// config file.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if Exists(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E121").
				WithDetailf("no %s in %s or any parent directory", ConfigFileName, startDir)
		}
		dir = parent
	}
}
