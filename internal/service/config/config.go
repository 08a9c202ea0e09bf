package config

import "time"

type Config struct {
	// NotifyWebhookURL receives resolved and submitted requests as JSON. Empty disables it.
	NotifyWebhookURL string
	NotifyTimeout    time.Duration
}
