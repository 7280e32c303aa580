package config

import (
	"strings"
)

const envDev = "DEV"

type EnvVars struct {
	Port     string `env:"PORT" envDefault:"3001"`
	AppName  string `env:"APP_NAME" envDefault:"Dentalization"`
	EnvName  string `env:"ENV" envDefault:"DEV"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Language string `env:"APP_LANGUAGE" envDefault:"id"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	if strings.HasPrefix(e.Port, ":") {
		return e.Port
	}
	return ":" + e.Port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	return strings.ToUpper(e.EnvName)
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

// GetLanguage returns the language used for user-facing error messages.
func (e EnvVars) GetLanguage() string {
	return e.Language
}
