package config

type Config interface {
	EnvConfig
	HTTPConfig
}

type EnvConfig interface {
	GetAppName() string
	GetAPIBaseURL() string
	GetCredentialsFile() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	HTTP
}

func New() Config {
	return mainConfig{}
}
