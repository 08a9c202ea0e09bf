package config

import "time"

type Config struct {
	// WriteTimeout bounds one snapshot write to the store.
	WriteTimeout time.Duration
}

func Default() Config {
	return Config{WriteTimeout: 5 * time.Second}
}
