package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/sitewright/sitewright/internal/foundation/errors"
)

// Validate checks the configuration for structural problems. Defaults have
// already been applied, so every field it reads is populated.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDurations(); err != nil {
		return err
	}
	if err := c.validateServe(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Content.Dir == c.Output.Dir {
		return errors.ValidationError("content and output directories must differ").
			WithContext("dir", c.Content.Dir).
			Build()
	}

	// The output directory must not sit inside the content tree: publishing
	// into the watched source would re-trigger builds forever.
	if isSubpath(c.Content.Dir, c.Output.Dir) {
		return errors.ValidationError("output directory must not be inside the content directory").
			WithContext("content", c.Content.Dir).
			WithContext("output", c.Output.Dir).
			Build()
	}

	// And the content tree must not sit inside the output directory, where
	// the publish swap would replace it.
	if isSubpath(c.Output.Dir, c.Content.Dir) {
		return errors.ValidationError("content directory must not be inside the output directory").
			WithContext("content", c.Content.Dir).
			WithContext("output", c.Output.Dir).
			Build()
	}

	return nil
}

func (c *Config) validateDurations() error {
	for _, d := range []struct {
		field string
		value string
	}{
		{"watch.debounce", c.Watch.Debounce},
		{"watch.max_delay", c.Watch.MaxDelay},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			return errors.ValidationError("invalid duration").
				WithCause(err).
				WithContext("field", d.field).
				WithContext("value", d.value).
				Build()
		}
	}

	if c.Watch.RebuildEvery != "" {
		v, err := time.ParseDuration(c.Watch.RebuildEvery)
		if err != nil {
			return errors.ValidationError("invalid duration").
				WithCause(err).
				WithContext("field", "watch.rebuild_every").
				WithContext("value", c.Watch.RebuildEvery).
				Build()
		}
		if v < time.Second {
			return errors.ValidationError("watch.rebuild_every must be at least 1s").
				WithContext("value", c.Watch.RebuildEvery).
				Build()
		}
	}

	return nil
}

func (c *Config) validateServe() error {
	if !strings.Contains(c.Serve.Addr, ":") {
		return errors.ValidationError("serve.addr must be a host:port address").
			WithContext("addr", c.Serve.Addr).
			Build()
	}
	return nil
}

// DebounceDuration returns the parsed quiet window. Validate has already
// checked the syntax.
func (w WatchConfig) DebounceDuration() time.Duration {
	d, _ := time.ParseDuration(w.Debounce)
	return d
}

// MaxDelayDuration returns the parsed deferral bound.
func (w WatchConfig) MaxDelayDuration() time.Duration {
	d, _ := time.ParseDuration(w.MaxDelay)
	return d
}

// RebuildInterval returns the periodic rebuild interval, zero when disabled.
func (w WatchConfig) RebuildInterval() time.Duration {
	if w.RebuildEvery == "" {
		return 0
	}
	d, _ := time.ParseDuration(w.RebuildEvery)
	return d
}

// isSubpath reports whether child is inside parent.
func isSubpath(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "."
}
