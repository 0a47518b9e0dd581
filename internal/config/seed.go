package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Seed is the declarative channel list synced into the store at startup.
type Seed struct {
	Channels []SeedChannel `yaml:"channels"`
}

type SeedChannel struct {
	ExternalID   string        `yaml:"external_id"`
	Name         string        `yaml:"name"`
	Topic        string        `yaml:"topic"`
	Moderation   bool          `yaml:"moderation"`
	Model        string        `yaml:"model"`
	Prompt       string        `yaml:"prompt"`
	PostInterval time.Duration `yaml:"post_interval"`
	Sources      []string      `yaml:"sources"`
}

// LoadSeed reads and checks a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(seed.Channels))
	for i, ch := range seed.Channels {
		if ch.ExternalID == "" {
			return nil, fmt.Errorf("seed channel %d: external_id is required", i)
		}
		if seen[ch.ExternalID] {
			return nil, fmt.Errorf("seed channel %s: declared twice", ch.ExternalID)
		}
		seen[ch.ExternalID] = true
		if ch.PostInterval < 0 {
			return nil, fmt.Errorf("seed channel %s: post_interval must be positive", ch.ExternalID)
		}
	}
	return &seed, nil
}
