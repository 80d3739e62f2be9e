package service

import "time"

type Config struct {
	TokenTTL          time.Duration
	OrderNumberPrefix string
	TokenPrefix       string

	// Now is the clock used for timestamps and expiry checks.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		TokenTTL:          10 * time.Minute,
		OrderNumberPrefix: "ORD-",
		TokenPrefix:       "DT-",
		Now:               time.Now,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TokenTTL <= 0 {
		c.TokenTTL = d.TokenTTL
	}
	if c.OrderNumberPrefix == "" {
		c.OrderNumberPrefix = d.OrderNumberPrefix
	}
	if c.TokenPrefix == "" {
		c.TokenPrefix = d.TokenPrefix
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	return c
}
