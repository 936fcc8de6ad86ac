// Package config loads the registry's recognized settings from the
// process environment. Argument parsing and flag definitions are left
// to the process entry point (an external collaborator per the design's
// scope); this package only knows how to turn already-resolved
// environment variables into a Settings value.
package config

import (
	"os"
	"strconv"
)

// Settings holds every configuration key recognized by the registry.
type Settings struct {
	LoggingLevel               string
	LoggingPretty              bool
	AllowInvalidResources      bool
	HostName                   string
	HostAddress                string
	QueryPort                  int
	QueryWebSocketPort         int
	RegistrationPort           int
	NodePort                   int
	ConnectionPort             int
	AdminPort                  int
	SettingsPort               int
	LoggingPort                int
	MDNSPort                   int
	RegistrationExpiryInterval int
	Priority                   int
}

// Default returns the settings table's documented defaults.
func Default() Settings {
	return Settings{
		LoggingLevel:               "info",
		LoggingPretty:              false,
		AllowInvalidResources:      false,
		HostName:                   "",
		HostAddress:                "",
		QueryPort:                  3211,
		QueryWebSocketPort:         3213,
		RegistrationPort:           3210,
		NodePort:                   3212,
		ConnectionPort:             3215,
		AdminPort:                  3208,
		SettingsPort:               3209,
		LoggingPort:                5106,
		MDNSPort:                   3214,
		RegistrationExpiryInterval: 12,
		Priority:                   100,
	}
}

// FromEnv loads Settings from the environment, falling back to Default()
// for anything unset or malformed.
func FromEnv() Settings {
	s := Default()
	s.LoggingLevel = getEnv("LOGGING_LEVEL", s.LoggingLevel)
	s.LoggingPretty = getEnvBool("LOGGING_PRETTY", s.LoggingPretty)
	s.AllowInvalidResources = getEnvBool("ALLOW_INVALID_RESOURCES", s.AllowInvalidResources)
	s.HostName = getEnv("HOST_NAME", s.HostName)
	s.HostAddress = getEnv("HOST_ADDRESS", s.HostAddress)
	s.QueryPort = getEnvInt("QUERY_PORT", s.QueryPort)
	s.QueryWebSocketPort = getEnvInt("QUERY_WS_PORT", s.QueryWebSocketPort)
	s.RegistrationPort = getEnvInt("REGISTRATION_PORT", s.RegistrationPort)
	s.NodePort = getEnvInt("NODE_PORT", s.NodePort)
	s.ConnectionPort = getEnvInt("CONNECTION_PORT", s.ConnectionPort)
	s.AdminPort = getEnvInt("ADMIN_PORT", s.AdminPort)
	s.SettingsPort = getEnvInt("SETTINGS_PORT", s.SettingsPort)
	s.LoggingPort = getEnvInt("LOGGING_PORT", s.LoggingPort)
	s.MDNSPort = getEnvInt("MDNS_PORT", s.MDNSPort)
	s.RegistrationExpiryInterval = getEnvInt("REGISTRATION_EXPIRY_INTERVAL", s.RegistrationExpiryInterval)
	s.Priority = getEnvInt("PRI", s.Priority)
	return s
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1"
}
