package config

import (
	"os"
	"strings"
)

// DemoGeneratorEnabled gates the internal demo endpoints and the continuation dispatcher.
//
// Set via env:
// - DEMO_GENERATOR_ENABLED=true
func DemoGeneratorEnabled() bool {
	return boolFromEnv("DEMO_GENERATOR_ENABLED", false)
}

// DemoAllowedCountries restricts the countries a demo tenant may be created for.
// Empty means every country with a locale provider (others fall back to the default locale).
//
// Set via env:
// - DEMO_ALLOWED_COUNTRIES="US,GB,DE"
//
// Country codes are case-insensitive.
func DemoAllowedCountries() []string {
	raw := os.Getenv("DEMO_ALLOWED_COUNTRIES")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if code := strings.ToUpper(strings.TrimSpace(part)); code != "" {
			out = append(out, code)
		}
	}
	return out
}
