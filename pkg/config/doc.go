/*
Package config loads daemon configuration from YAML.

Defaults come from Default(); a config file overrides only the fields
it sets. Declared paths and policies are converted to their domain
types at startup, so a typo in the file fails the daemon before any
traffic decisions are made.
*/
package config
