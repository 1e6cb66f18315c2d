// Package config loads, normalizes, and validates caseflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TIPARSER_API_KEY and CASEHELPER_PASSWORD. The Config type centralizes every
// knob the daemon and CLI need, from storage driver selection to the health
// schedule and per-source optionality.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
