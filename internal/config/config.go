// Package config builds the process configuration from the environment.
//
// Config is read once at start-up (FromEnv) and handed to the components that
// need it; nothing below cmd/ reads the environment directly.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
)

// Config is the whole process configuration.
type Config struct {
	Source  Source
	DB      DB
	Load    Load
	Log     Log
	Metrics Metrics
}

// Source locates the objects to load.
type Source struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// DB describes the destination database.
type DB struct {
	Kind           string // postgres | sqlite | mssql
	Host           string
	Port           int
	Name           string
	User           string
	Password       string
	SecretName     string
	IAMAuth        bool
	SSLMode        string
	Schema         string
	DSN            string
	ConnectTimeout time.Duration
}

// Load tunes decoding and writing.
type Load struct {
	StampColumn     string
	Encoding        string
	Delimiter       rune
	ContinueOnError bool
}

// Log selects the slog handler.
type Log struct {
	Level  string
	Format string
}

// Metrics selects the metrics backend.
type Metrics struct {
	Backend        string // none | datadog | pushgateway
	PushgatewayURL string
	Tags           string
	Job            string
}

var (
	dbKinds         = map[string]int{"postgres": 5432, "mssql": 1433, "sqlite": 0}
	metricsBackends = map[string]bool{"none": true, "datadog": true, "pushgateway": true}
	logFormats      = map[string]bool{"json": true, "text": true}
)

// Issue is one invalid or missing setting.
type Issue struct {
	Key     string
	Message string
}

// Error reports configuration problems. It is fatal before any store access.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, iss := range e.Issues {
		parts = append(parts, iss.Key+": "+iss.Message)
	}
	return "config: " + strings.Join(parts, "; ")
}

func (e *Error) add(key, format string, args ...any) {
	e.Issues = append(e.Issues, Issue{Key: key, Message: fmt.Sprintf(format, args...)})
}

// Only keeps the issues whose key starts with one of prefixes. It returns nil
// when none is left.
func (e *Error) Only(prefixes ...string) error {
	kept := &Error{}
	for _, iss := range e.Issues {
		for _, p := range prefixes {
			if strings.HasPrefix(iss.Key, p) {
				kept.Issues = append(kept.Issues, iss)
				break
			}
		}
	}
	return kept.orNil()
}

func (e *Error) orNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &Error{Issues: []Issue{{Key: path, Message: err.Error()}}}
	}
	return nil
}

// FromEnv reads and validates the configuration from the process environment.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	bad := &Error{}
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	getBool := func(key string) bool {
		raw := get(key, "")
		if raw == "" {
			return false
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			bad.add(key, "not a boolean: %q", raw)
		}
		return b
	}

	c := Config{
		Source: Source{
			Bucket:    get("S3_BUCKET", ""),
			Prefix:    get("S3_PREFIX", ""),
			Region:    get("AWS_REGION", ""),
			Endpoint:  get("S3_ENDPOINT", ""),
			PathStyle: getBool("S3_USE_PATH_STYLE"),
		},
		DB: DB{
			Kind:       strings.ToLower(get("DB_KIND", "postgres")),
			Host:       get("DB_HOST", ""),
			Name:       get("DB_NAME", ""),
			User:       get("DB_USER", ""),
			SecretName: get("DB_SECRET_NAME", ""),
			IAMAuth:    getBool("DB_IAM_AUTH"),
			SSLMode:    get("DB_SSLMODE", "prefer"),
			Schema:     get("DB_SCHEMA", ""),
			DSN:        get("DB_DSN", ""),
		},
		Load: Load{
			StampColumn:     get("LOAD_STAMP_COLUMN", ""),
			Encoding:        get("SOURCE_ENCODING", "utf-8"),
			ContinueOnError: getBool("SWEEP_CONTINUE_ON_ERROR"),
		},
		Log: Log{
			Level:  strings.ToLower(get("LOG_LEVEL", "info")),
			Format: strings.ToLower(get("LOG_FORMAT", "json")),
		},
		Metrics: Metrics{
			Backend:        strings.ToLower(get("METRICS_BACKEND", "none")),
			PushgatewayURL: get("PUSHGATEWAY_URL", ""),
			Tags:           get("METRICS_TAGS", ""),
			Job:            get("METRICS_JOB", "table-loader"),
		},
	}

	// Passwords keep surrounding whitespace.
	if v, ok := lookup("DB_PASSWORD"); ok {
		c.DB.Password = v
	}

	c.DB.Port = dbKinds[c.DB.Kind]
	if raw := get("DB_PORT", ""); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p <= 0 || p > 65535 {
			bad.add("DB_PORT", "not a valid port: %q", raw)
		} else {
			c.DB.Port = p
		}
	}

	c.DB.ConnectTimeout = 10 * time.Second
	if raw := get("DB_CONNECT_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			bad.add("DB_CONNECT_TIMEOUT", "not a positive duration: %q", raw)
		} else {
			c.DB.ConnectTimeout = d
		}
	}

	// CSV_DELIMITER is taken raw: a space or tab is a legitimate delimiter.
	c.Load.Delimiter = ','
	if raw, ok := lookup("CSV_DELIMITER"); ok && raw != "" {
		d, err := parseDelimiter(raw)
		if err != nil {
			bad.add("CSV_DELIMITER", "%v", err)
		} else {
			c.Load.Delimiter = d
		}
	}

	if err := c.validate(bad); err != nil {
		return c, err
	}
	return c, nil
}

func parseDelimiter(raw string) (rune, error) {
	switch raw {
	case `\t`, "tab", "TAB":
		return '\t', nil
	}
	if utf8.RuneCountInString(raw) != 1 {
		return 0, fmt.Errorf("must be a single character, got %q", raw)
	}
	r, _ := utf8.DecodeRuneInString(raw)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("invalid delimiter %q", raw)
	}
	return r, nil
}

// Validate re-checks c after programmatic overrides such as CLI flags.
func (c Config) Validate() error {
	return c.validate(&Error{})
}

func (c Config) validate(bad *Error) error {
	if _, ok := dbKinds[c.DB.Kind]; !ok {
		bad.add("DB_KIND", "unknown backend %q (want postgres, sqlite or mssql)", c.DB.Kind)
	} else if c.DB.Kind == "sqlite" {
		if c.DB.DSN == "" {
			bad.add("DB_DSN", "required for sqlite (database file path)")
		}
	} else if c.DB.DSN == "" {
		if c.DB.Host == "" {
			bad.add("DB_HOST", "required")
		}
		if c.DB.Name == "" {
			bad.add("DB_NAME", "required")
		}
		if c.DB.User == "" {
			bad.add("DB_USER", "required")
		}
		if c.DB.Password == "" && c.DB.SecretName == "" && !c.DB.IAMAuth {
			bad.add("DB_PASSWORD", "no password source: set DB_PASSWORD, DB_SECRET_NAME or DB_IAM_AUTH")
		}
		if c.DB.IAMAuth && c.Source.Region == "" {
			bad.add("AWS_REGION", "required with DB_IAM_AUTH")
		}
	}

	if !metricsBackends[c.Metrics.Backend] {
		bad.add("METRICS_BACKEND", "unknown backend %q (want none, datadog or pushgateway)", c.Metrics.Backend)
	}
	if c.Metrics.Backend == "pushgateway" && c.Metrics.PushgatewayURL == "" {
		bad.add("PUSHGATEWAY_URL", "required with METRICS_BACKEND=pushgateway")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		bad.add("LOG_LEVEL", "%v", err)
	}
	if !logFormats[c.Log.Format] {
		bad.add("LOG_FORMAT", "unknown format %q (want json or text)", c.Log.Format)
	}
	return bad.orNil()
}

// RequireBucket reports a configuration error when no bucket is configured.
func (c Config) RequireBucket() error {
	if c.Source.Bucket == "" {
		return &Error{Issues: []Issue{{Key: "S3_BUCKET", Message: "required for sweep"}}}
	}
	return nil
}

// SlogLevel maps Level to a slog.Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown level %q", l.Level)
	}
	return lvl, nil
}

// NeedsPassword reports whether Connect must resolve a password before
// building the DSN.
func (d DB) NeedsPassword() bool {
	return d.Kind != "sqlite" && d.DSN == ""
}

// Endpoint is host:port, as used by RDS IAM token signing.
func (d DB) Endpoint() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// ConnString builds the driver DSN for d with the resolved password.
// An explicit DB_DSN is returned unchanged.
func (d DB) ConnString(password string) (string, error) {
	if d.DSN != "" {
		return d.DSN, nil
	}
	switch d.Kind {
	case "postgres":
		return d.postgresURL(password), nil
	case "mssql":
		return d.sqlserverURL(password), nil
	default:
		return "", &Error{Issues: []Issue{{Key: "DB_DSN", Message: fmt.Sprintf("required for %s", d.Kind)}}}
	}
}

func (d DB) postgresURL(password string) string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   d.Endpoint(),
		Path:   "/" + d.Name,
		User:   url.UserPassword(d.User, password),
	}
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	if d.ConnectTimeout > 0 {
		q.Set("connect_timeout", d.timeoutSeconds())
	}
	q.Set("application_name", "table-loader")
	u.RawQuery = q.Encode()
	return u.String()
}

// timeoutSeconds rounds ConnectTimeout up to whole seconds; both drivers read
// 0 as no timeout.
func (d DB) timeoutSeconds() string {
	return strconv.Itoa(int(math.Ceil(d.ConnectTimeout.Seconds())))
}

func (d DB) sqlserverURL(password string) string {
	u := &url.URL{
		Scheme: "sqlserver",
		Host:   d.Endpoint(),
		User:   url.UserPassword(d.User, password),
	}
	q := url.Values{}
	q.Set("database", d.Name)
	if d.ConnectTimeout > 0 {
		q.Set("connection timeout", d.timeoutSeconds())
	}
	switch d.SSLMode {
	case "disable":
		q.Set("encrypt", "disable")
	case "require", "verify-ca", "verify-full":
		q.Set("encrypt", "true")
	}
	q.Set("app name", "table-loader")
	u.RawQuery = q.Encode()
	return u.String()
}
