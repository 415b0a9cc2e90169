// Package config provides environment-based configuration.
//
// All settings have defaults, so an empty environment yields a working
// development config. Validates timing and limit values at load time.
package config
