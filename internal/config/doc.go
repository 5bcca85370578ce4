// Package config loads the antifraud daemon's typed configuration once
// at startup from built-in defaults, an optional YAML file and
// CORE_-prefixed environment variables.
package config
