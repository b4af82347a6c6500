package engine

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/wesleyorama2/drove/internal/attack/logsink"
	"github.com/wesleyorama2/drove/internal/attack/metrics"
	"github.com/wesleyorama2/drove/internal/transport"
)

// ErrInvalidOptions is wrapped by every option validation error.
var ErrInvalidOptions = errors.New("invalid attack options")

// Options controls a single attack run.
type Options struct {
	// BaseURL is the target every relative request path resolves against.
	BaseURL string

	// Users is the number of virtual users to hatch.
	Users int

	// HatchRate is the number of users started per second.
	HatchRate float64

	// RunTime starts once every user has hatched. Zero runs until the
	// context passed to Run is cancelled.
	RunTime time.Duration

	// ThrottleRequests caps the aggregate request rate per second. Zero
	// disables the throttle.
	ThrottleRequests float64

	// ThrottleCapacity is the number of banked tokens (default: the rate).
	ThrottleCapacity int

	// NoResetMetrics keeps requests made while hatching in the final
	// metrics.
	NoResetMetrics bool

	// DrainTimeout bounds how long stopped users may take to finish their
	// in-flight task (default: 30s).
	DrainTimeout time.Duration

	DebugLog    string
	DebugFormat logsink.Format

	RequestLog    string
	RequestFormat logsink.Format

	// Seed seeds every user's random source. Zero picks a random seed.
	Seed uint64

	Headers map[string]string
	HTTP    transport.Config
	Metrics metrics.Config
}

// DefaultOptions returns options with every default filled in. Users and
// BaseURL still have to be set.
func DefaultOptions() Options {
	return Options{
		Users:         1,
		HatchRate:     1,
		DrainTimeout:  30 * time.Second,
		DebugFormat:   logsink.FormatJSON,
		RequestFormat: logsink.FormatJSON,
		HTTP:          transport.DefaultConfig(),
		Metrics:       metrics.DefaultConfig(),
	}
}

// Validate checks the options for configuration errors.
func (o *Options) Validate() error {
	var errs []error
	if o.Users <= 0 {
		errs = append(errs, fmt.Errorf("users must be positive, got %d", o.Users))
	}
	if o.HatchRate <= 0 {
		errs = append(errs, fmt.Errorf("hatch rate must be positive, got %g", o.HatchRate))
	}
	if o.RunTime < 0 {
		errs = append(errs, fmt.Errorf("run time must not be negative, got %s", o.RunTime))
	}
	if o.ThrottleRequests < 0 {
		errs = append(errs, fmt.Errorf("throttle must not be negative, got %g", o.ThrottleRequests))
	}
	if o.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("drain timeout must not be negative, got %s", o.DrainTimeout))
	}
	if !slices.Contains(logsink.DebugFormats, o.DebugFormat) {
		errs = append(errs, fmt.Errorf("debug format %s is not supported", o.DebugFormat))
	}
	if !slices.Contains(logsink.RequestFormats, o.RequestFormat) {
		errs = append(errs, fmt.Errorf("request log format %s is not supported", o.RequestFormat))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidOptions, errors.Join(errs...))
}

func (o *Options) applyDefaults() {
	if o.DrainTimeout == 0 {
		o.DrainTimeout = 30 * time.Second
	}
	if o.HTTP == (transport.Config{}) {
		o.HTTP = transport.DefaultConfig()
	}
}

// hatchInterval is the delay between two spawns.
func (o *Options) hatchInterval() time.Duration {
	return time.Duration(float64(time.Second) / o.HatchRate)
}
