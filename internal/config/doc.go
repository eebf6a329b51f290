// Package config loads and validates the YAML configuration for the sensor
// node and collector binaries. The two node variants (driver, passenger)
// differ only by this configuration, not by code.
package config
