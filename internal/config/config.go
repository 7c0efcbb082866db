// Package config loads runtime settings from the environment.
//
// An optional .env file is read first (godotenv). Values already set in the
// real environment win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the server needs.
type Config struct {
	Port int

	SweepInterval  time.Duration
	LockTimeout    time.Duration
	GeocodeTimeout time.Duration

	// GoogleAPIKey enables geocoding and place search. Empty means every new
	// location gets the fallback coordinates.
	GoogleAPIKey string
	// GeocodeCachePath is the SQLite file for resolved places. Empty disables
	// the cache.
	GeocodeCachePath string

	// KafkaBrokers empty means chat events are dropped.
	KafkaBrokers []string
	KafkaTopic   string

	// OTLPEndpoint empty means tracing is off.
	OTLPEndpoint     string
	ServiceName      string
	TraceSampleRatio float64

	NearbyRadiusKm float64
	AllowedOrigins []string

	LogLevel  string
	LogFormat string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Port:             8080,
		SweepInterval:    6 * time.Hour,
		LockTimeout:      5 * time.Second,
		GeocodeTimeout:   5 * time.Second,
		GeocodeCachePath: "data/geocode.db",
		KafkaTopic:       "chat.messages",
		ServiceName:      "companion",
		TraceSampleRatio: 1.0,
		NearbyRadiusKm:   3.0,
		AllowedOrigins:   []string{"*"},
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Load reads envFiles (".env" when none are given, missing files are fine)
// and then the process environment.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: loading env file: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, starting from Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	p.integer("PORT", &cfg.Port)
	p.duration("SWEEP_INTERVAL", &cfg.SweepInterval)
	p.duration("LOCK_TIMEOUT", &cfg.LockTimeout)
	p.duration("GEOCODE_TIMEOUT", &cfg.GeocodeTimeout)
	p.str("GOOGLE_API_KEY", &cfg.GoogleAPIKey)
	p.str("GEOCODE_CACHE_PATH", &cfg.GeocodeCachePath)
	p.list("KAFKA_BROKERS", &cfg.KafkaBrokers)
	p.str("KAFKA_TOPIC", &cfg.KafkaTopic)
	p.str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTLPEndpoint)
	p.str("OTEL_SERVICE_NAME", &cfg.ServiceName)
	p.float("OTEL_TRACES_SAMPLER_ARG", &cfg.TraceSampleRatio)
	p.float("NEARBY_DEFAULT_RADIUS_KM", &cfg.NearbyRadiusKm)
	p.list("CORS_ORIGINS", &cfg.AllowedOrigins)
	p.str("LOG_LEVEL", &cfg.LogLevel)
	p.str("LOG_FORMAT", &cfg.LogFormat)

	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT %d out of range", c.Port))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("config: SWEEP_INTERVAL must be positive"))
	}
	if c.LockTimeout < 0 || c.GeocodeTimeout < 0 {
		errs = append(errs, errors.New("config: timeouts must not be negative"))
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		errs = append(errs, errors.New("config: OTEL_TRACES_SAMPLER_ARG must be within [0, 1]"))
	}
	if c.NearbyRadiusKm < 0 {
		errs = append(errs, errors.New("config: NEARBY_DEFAULT_RADIUS_KM must not be negative"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: LOG_FORMAT %q is not text or json", c.LogFormat))
	}
	return errors.Join(errs...)
}

// parser keeps the first error so FromEnv reads as a flat list.
type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) raw(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.raw(key); ok {
		*dst = v
	}
}

func (p *parser) integer(key string, dst *int) {
	v, ok := p.raw(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = fmt.Errorf("config: invalid %s %q: %w", key, v, err)
		return
	}
	*dst = n
}

func (p *parser) float(key string, dst *float64) {
	v, ok := p.raw(key)
	if !ok || v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.err = fmt.Errorf("config: invalid %s %q: %w", key, v, err)
		return
	}
	*dst = f
}

func (p *parser) duration(key string, dst *time.Duration) {
	v, ok := p.raw(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.err = fmt.Errorf("config: invalid %s %q: %w", key, v, err)
		return
	}
	*dst = d
}

// list splits a comma separated value, dropping empty entries. A set but
// empty variable yields an empty list.
func (p *parser) list(key string, dst *[]string) {
	v, ok := p.raw(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
