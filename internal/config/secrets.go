package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
)

// KeyFunc resolves a credential when a call is made.
type KeyFunc func() (string, error)

// Secrets reads credentials from the environment on every lookup so a key
// rotated or removed after startup affects only subsequent calls.
type Secrets struct {
	v *viper.Viper
}

// NewSecrets creates a resolver backed by the process environment.
func NewSecrets() *Secrets {
	v := viper.New()
	v.AutomaticEnv()
	return &Secrets{v: v}
}

// Key returns a KeyFunc for the named environment variable.
func (s *Secrets) Key(envName string) KeyFunc {
	return func() (string, error) {
		if envName == "" {
			return "", apperr.New(apperr.CodeInvalidConfig, "resolve secret", "no environment variable configured")
		}
		val := strings.TrimSpace(s.v.GetString(envName))
		if val == "" {
			return "", apperr.Newf(apperr.CodeInvalidConfig, "resolve secret", "%s is not set", envName)
		}
		return val, nil
	}
}

// StaticKey returns a KeyFunc that always yields key.
func StaticKey(key string) KeyFunc {
	return func() (string, error) {
		if key == "" {
			return "", apperr.New(apperr.CodeInvalidConfig, "resolve secret", "empty key")
		}
		return key, nil
	}
}
