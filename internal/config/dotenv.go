package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv layers env files onto the process environment before the
// yaml config is read. .env.local takes precedence over .env, and
// variables already present in the OS environment are never overwritten,
// so deployment env always wins. The returned slice names the files that
// were found and applied, for the startup log.
func LoadDotEnv() []string {
	var applied []string
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err == nil {
			applied = append(applied, name)
		}
	}
	if len(applied) > 0 {
		_ = godotenv.Load(applied...)
	}
	return applied
}
