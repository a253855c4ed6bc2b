package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"jan-server/services/envchat-api/internal/infrastructure/logger"
)

// DefaultEnvironmentName is the display name of the seeded default environment.
const DefaultEnvironmentName = "Default Environment"

// EnvironmentSeedEntry describes a global environment created on startup when it
// does not exist yet.
type EnvironmentSeedEntry struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Settings map[string]any `yaml:"settings"`
	Backend  map[string]any `yaml:"backend_settings"`
}

type environmentSeedDocument struct {
	Environments []EnvironmentSeedEntry `yaml:"environments"`
}

// EnvironmentSeedEntries returns the environments to seed: the default
// environment derived from the provider settings, followed by the entries of
// ENVIRONMENT_SEED_FILE.
func (c *Config) EnvironmentSeedEntries() ([]EnvironmentSeedEntry, error) {
	var entries []EnvironmentSeedEntry
	if entry, ok := c.defaultEnvironmentSeed(); ok {
		entries = append(entries, entry)
	}
	if strings.TrimSpace(c.EnvironmentSeedFile) == "" {
		return entries, nil
	}
	fromFile, err := LoadEnvironmentSeedFile(c.EnvironmentSeedFile)
	if err != nil {
		return nil, err
	}
	return append(entries, fromFile...), nil
}

func (c *Config) defaultEnvironmentSeed() (EnvironmentSeedEntry, bool) {
	if strings.TrimSpace(c.ProviderSystemMessage) == "" {
		return EnvironmentSeedEntry{}, false
	}
	completion := map[string]any{
		"system_message": c.ProviderSystemMessage,
		"temperature":    c.ProviderTemperature,
		"top_p":          c.ProviderTopP,
		"max_tokens":     c.ProviderMaxTokens,
	}
	return EnvironmentSeedEntry{
		ID:       "default",
		Name:     DefaultEnvironmentName,
		Settings: map[string]any{},
		Backend:  map[string]any{"openai": completion},
	}, true
}

// LoadEnvironmentSeedFile parses a yaml seed file. String values may reference
// environment variables as ${NAME}.
func LoadEnvironmentSeedFile(path string) ([]EnvironmentSeedEntry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("environment seed path is empty")
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read environment seed %q: %w", cleanPath, err)
	}
	log := logger.GetLogger()
	log.Info().Str("path", cleanPath).Msg("loading environment seed file")

	var doc environmentSeedDocument
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &doc); err != nil {
		return nil, fmt.Errorf("parse environment seed %q: %w", cleanPath, err)
	}

	entries := make([]EnvironmentSeedEntry, 0, len(doc.Environments))
	for idx, entry := range doc.Environments {
		entry.ID = strings.TrimSpace(entry.ID)
		entry.Name = strings.TrimSpace(entry.Name)
		if entry.ID == "" || entry.Name == "" {
			return nil, fmt.Errorf("environments[%d]: id and name are required", idx)
		}
		if entry.Backend == nil {
			return nil, fmt.Errorf("environments[%d]: backend_settings are required", idx)
		}
		if entry.Settings == nil {
			entry.Settings = map[string]any{}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
