package config

import (
	"os"
	"path/filepath"
)

const (
	appNameVar     = "APP_NAME"
	apiURLVar      = "CRM_API_URL"
	credentialsVar = "CRM_CREDENTIALS_FILE"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "CRM Client")
}

// GetAPIBaseURL returns the base URL for the remote CRM API
// (e.g., "https://crm.example.com/api"). All endpoint paths are resolved
// relative to this URL.
func (EnvVars) GetAPIBaseURL() string {
	return GetEnv(apiURLVar, "http://localhost:3001/api")
}

// GetCredentialsFile returns the path of the file holding the persisted
// access/refresh token pair. Defaults to a per-user location so credentials
// survive restarts but never leave the machine.
func (EnvVars) GetCredentialsFile() string {
	if path := os.Getenv(credentialsVar); path != "" {
		return path
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".crm-credentials")
	}
	return filepath.Join(configDir, "crm", "credentials")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
