package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// durationField reads a config duration. Values use time.ParseDuration syntax
// ("750ms", "2m"); a bare integer counts seconds. Empty or zero yields def.
func durationField(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	var d time.Duration
	if n, err := strconv.Atoi(s); err == nil {
		d = time.Duration(n) * time.Second
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q (want e.g. 30s or 2m)", path, raw)
	}
	switch {
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	case d == 0:
		return def, nil
	}
	return d, nil
}

// durationFields lists every duration in the document with its default.
func (c *Config) durationFields() []struct {
	path string
	raw  string
	def  time.Duration
} {
	return []struct {
		path string
		raw  string
		def  time.Duration
	}{
		{"telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout, 0},
		{"storage.github.timeout", c.Storage.GitHub.Timeout, 0},
	}
}

// PollTimeout is telegram.poll_timeout or DefaultPollTimeout.
func (c *Config) PollTimeout() (time.Duration, error) {
	return durationField("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout)
}
