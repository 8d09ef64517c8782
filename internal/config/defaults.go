// Package config provides centralized configuration constants for
// planpress. All default values should be defined here to ensure a single
// source of truth.
package config

// Viper configuration keys.
const (
	KeyServerPort   = "server.port"
	KeyDataDir      = "data.dir"
	KeyTemplatesDir = "templates.dir"
	KeyVerbose      = "verbose"
)

// Defaults.
const (
	// DefaultServerPort is the HTTP listen port for serve mode.
	DefaultServerPort = 8090

	// DefaultDataDir holds the SQLite database.
	DefaultDataDir = ".planpress"

	// DefaultTemplatesDir is scanned for extra plan templates; the
	// embedded default template is always available.
	DefaultTemplatesDir = ""
)

// ConfigFileName is the base name of the viper config file
// (.planpress.yaml).
const ConfigFileName = ".planpress"
