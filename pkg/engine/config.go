package engine

import (
	"fmt"
	"time"
)

// RetentionConfig controls how long persisted snapshots are kept.
type RetentionConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	MaxAge        string `yaml:"max_age" json:"max_age"`               // e.g. "720h"
	KeepLatest    int    `yaml:"keep_latest" json:"keep_latest"`       // never pruned, whatever their age
	CheckInterval string `yaml:"check_interval" json:"check_interval"` // default 1h
	ArchiveDir    string `yaml:"archive_dir" json:"archive_dir"`       // snapshots are archived here before deletion
}

// Validate checks that durations parse and counts are sane.
func (c *RetentionConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if _, err := time.ParseDuration(c.MaxAge); err != nil {
		return fmt.Errorf("retention.max_age: %w", err)
	}
	if c.CheckInterval != "" {
		d, err := time.ParseDuration(c.CheckInterval)
		if err != nil {
			return fmt.Errorf("retention.check_interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("retention.check_interval must be positive")
		}
	}
	if c.KeepLatest < 0 {
		return fmt.Errorf("retention.keep_latest must not be negative")
	}
	return nil
}

// ElectionConfig controls leader election between replicas sharing storage.
type ElectionConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	LeaseName string `yaml:"lease_name" json:"lease_name"`
	TTL       string `yaml:"ttl" json:"ttl"`
}

// LeaseTTL returns the parsed TTL, defaulting to 10s.
func (c *ElectionConfig) LeaseTTL() (time.Duration, error) {
	if c == nil || c.TTL == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 0, fmt.Errorf("election.ttl: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("election.ttl must be positive")
	}
	return d, nil
}

// Lease returns the lease name, defaulting to "meshgraph-reconciler".
func (c *ElectionConfig) Lease() string {
	if c == nil || c.LeaseName == "" {
		return "meshgraph-reconciler"
	}
	return c.LeaseName
}
