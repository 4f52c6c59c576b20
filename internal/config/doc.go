// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// One file can carry both the client and server sections; each binary reads the
// sections it needs.
package config
