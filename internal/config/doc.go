// Package config loads and validates the portal configuration from
// environment variables (P4_* prefix) layered over an optional YAML file.
// Configuration defects are fatal at startup: the portal refuses to run with
// missing or malformed key material rather than degrade its crypto.
package config
