// Package config loads, validates, and materializes weathercache
// configuration.
//
// Configuration is layered: NewDefault provides sane defaults, LoadFromFile
// merges a YAML file over them, and LoadFromEnv applies WEATHERCACHE_*
// environment overrides last. Validate rejects malformed settings before any
// cache is constructed.
//
// BuildManager and BuildCostAware are the composition roots: they translate
// the flat, human-readable configuration (size strings like "64MB", duration
// strings like "5m") into wired cache instances.
//
// Example:
//
//	cfg := config.NewDefault()
//	if err := cfg.LoadFromFile("weathercache.yaml"); err != nil {
//		log.Fatal(err)
//	}
//	cfg.LoadFromEnv()
//	manager, err := cfg.BuildManager(slog.Default())
package config
