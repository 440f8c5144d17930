package perfhint

import (
	"github.com/prometheus/client_golang/prometheus"

	"tangled.org/atscan.net/perfhint/channel"
	"tangled.org/atscan.net/perfhint/session"
)

type config struct {
	channelConfig *channel.Config
	sessionConfig *session.RegistryConfig
	archiveDir    string
	promRegistry  *prometheus.Registry
}

func defaultConfig() *config {
	return &config{
		channelConfig: channel.DefaultConfig(""),
		sessionConfig: session.DefaultRegistryConfig(),
	}
}

// Option configures the Service
type Option func(*config)

// WithDirectory sets the directory holding shared memory segments
func WithDirectory(dir string) Option {
	return func(c *config) {
		if dir != "" {
			c.channelConfig.Dir = dir
		}
	}
}

// WithArchiveDir enables the closed-session metrics archive in dir
func WithArchiveDir(dir string) Option {
	return func(c *config) {
		c.archiveDir = dir
	}
}

// WithLogger sets a custom logger
func WithLogger(logger Logger) Option {
	return func(c *config) {
		c.channelConfig.Logger = logger
		c.sessionConfig.Logger = logger
	}
}

// WithVerbose enables per-channel and per-group logging
func WithVerbose(verbose bool) Option {
	return func(c *config) {
		c.channelConfig.Verbose = verbose
	}
}

// WithRecordsCapacity sets how many frames each session keeps statistics over
func WithRecordsCapacity(capacity int32) Option {
	return func(c *config) {
		c.sessionConfig.RecordsCapacity = capacity
	}
}

// WithJankFactor sets the multiple of the target duration above which a
// frame counts as missed
func WithJankFactor(factor float64) Option {
	return func(c *config) {
		c.sessionConfig.JankFactor = factor
	}
}

// WithLowFrameRateThreshold sets the frame rate below which sessions are
// reported as low frame rate
func WithLowFrameRateThreshold(fps int32) Option {
	return func(c *config) {
		c.sessionConfig.LowFrameRateThreshold = fps
	}
}

// WithPrometheusRegistry registers metrics with reg instead of a private registry
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(c *config) {
		c.promRegistry = reg
	}
}

// SessionSettings are the per-session statistics parameters
type SessionSettings struct {
	RecordsCapacity       int32
	JankFactor            float64
	LowFrameRateThreshold int32
}

// DefaultSessionSettings returns the parameters sessions use unless overridden
func DefaultSessionSettings() SessionSettings {
	d := session.DefaultRegistryConfig()
	return SessionSettings{
		RecordsCapacity:       d.RecordsCapacity,
		JankFactor:            d.JankFactor,
		LowFrameRateThreshold: d.LowFrameRateThreshold,
	}
}
