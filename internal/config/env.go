package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vango-dev/isomorph/internal/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ISOMORPH_"

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. With no arguments it loads
// ".env" and ignores its absence.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.New("E123").Wrap(err)
	}
	return nil
}

// ApplyEnv applies ISOMORPH_* overrides read through lookup. Pass
// os.LookupEnv for the process environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	var firstErr error
	fail := func(name, v string, err error) {
		if firstErr == nil {
			firstErr = errors.New("E122").WithDetailf("%s%s=%q: %v", EnvPrefix, name, v, err)
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(name, v, err)
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *Duration) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				fail(name, v, err)
				return
			}
			*dst = Duration(d)
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				fail(name, v, err)
				return
			}
			*dst = b
		}
	}

	str("ADDR", &c.Server.Addr)
	duration("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	boolean("H2C", &c.Server.H2C)
	if v, ok := lookup(EnvPrefix + "ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	str("ASSET_DIR", &c.Assets.Dir)
	str("ASSET_PREFIX", &c.Assets.Prefix)
	str("BUILD_DIR", &c.Build.Output)
	str("PUBLIC_DIR", &c.Build.Public)
	str("S3_BUCKET", &c.Assets.S3.Bucket)
	str("S3_PREFIX", &c.Assets.S3.Prefix)
	str("S3_REGION", &c.Assets.S3.Region)
	str("S3_ENDPOINT", &c.Assets.S3.Endpoint)
	boolean("S3_PATH_STYLE", &c.Assets.S3.PathStyle)

	integer("MAX_SESSIONS_PER_IP", &c.Session.MaxPerIP)
	duration("PING_INTERVAL", &c.Session.PingInterval)
	duration("READ_TIMEOUT", &c.Session.ReadTimeout)
	duration("WRITE_TIMEOUT", &c.Session.WriteTimeout)
	integer("RATE_BURST", &c.Session.RateBurst)
	if v, ok := lookup(EnvPrefix + "RATE_LIMIT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			fail("RATE_LIMIT", v, err)
		} else {
			c.Session.RateLimit = f
		}
	}

	integer("RENDER_CACHE", &c.Render.CacheSize)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	// Standard AWS variables, unprefixed.
	if v, ok := lookup("AWS_ACCESS_KEY_ID"); ok {
		c.Assets.S3.AccessKeyID = v
	}
	if v, ok := lookup("AWS_SECRET_ACCESS_KEY"); ok {
		c.Assets.S3.SecretAccessKey = v
	}
	if v, ok := lookup("AWS_SESSION_TOKEN"); ok {
		c.Assets.S3.SessionToken = v
	}
	return firstErr
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
