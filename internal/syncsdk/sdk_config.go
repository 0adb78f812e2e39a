package syncsdk

import (
	"net/url"
	"time"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultRetryCount = 3
)

// Config is the configuration of a Client
type Config struct {
	BaseURL     string        // BaseURL is required
	Timeout     time.Duration // Timeout of a single request, DefaultTimeout when zero
	RetryCount  int           // RetryCount for transport failures, DefaultRetryCount when zero, none when negative
	Compression string        // Compression level of block payloads, "none" or empty disables it
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoServerURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidServerURL
	}
	return nil
}

func (c *Config) compressionEnabled() bool {
	return c.Compression != "" && c.Compression != "none"
}
