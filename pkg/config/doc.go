// Package config loads the wrapup configuration.
//
// Sources are layered with koanf, later layers overriding earlier ones:
//
//  1. the embedded defaults (embedded/defaults.toml)
//  2. the user file, $XDG_CONFIG_HOME/wrapup/wrapup.toml or --config
//  3. a .env file in the config directory
//  4. WRAPUP_ environment variables (WRAPUP_SECTION__KEY)
//  5. programmatic overrides
//
// The result is decoded into an immutable Config that every component
// receives at construction.
package config
