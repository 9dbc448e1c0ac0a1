package config

import (
	"time"
)

type HTTPConfig interface {
	GetHTTPTimeout() time.Duration
}

type HTTP struct{}

var _ HTTPConfig = HTTP{}

const defaultHTTPTimeout = 30 * time.Second

func (HTTP) GetHTTPTimeout() time.Duration {
	timeout := GetEnv("CRM_HTTP_TIMEOUT", "")
	if timeout == "" {
		return defaultHTTPTimeout
	}
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return defaultHTTPTimeout
	}
	return d
}
