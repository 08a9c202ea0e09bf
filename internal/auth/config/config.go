package config

import "time"

type Config struct {
	// TokenSecret signs session tokens.
	TokenSecret string
	TokenTTL    time.Duration
	// AdminLogin and AdminPasswordHash (bcrypt) guard the HTTP admin API.
	AdminLogin        string
	AdminPasswordHash string
}
