// Package config loads service configuration in three layers:
// built-in defaults, an optional YAML file named by
// GATEKEEPER_CONFIG_FILE, and GATEKEEPER_* environment variables.
// Later layers override earlier ones, so an operator can ship a base
// file and tweak single values per deployment through the
// environment. LoadConfig validates the merged result before
// returning it.
package config
