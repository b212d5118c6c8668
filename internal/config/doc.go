// Package config defines the settings shared by tone-detector and
// tone-listener and provides helpers to load, validate and save them as YAML.
//
// Validate fills defaults for every zero value, so a file only has to carry
// the settings that differ from a stock QuickCall II decoder.
package config
