package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AuthorityConfig controls domain authority weighting for credibility
// scoring. Weights add on top of the base credibility, capped at
// MaxDomainBonus per domain.
type AuthorityConfig struct {
	BaseCredibility float64            `mapstructure:"base_credibility"`
	MaxDomainBonus  float64            `mapstructure:"max_domain_bonus"`
	DomainWeights   map[string]float64 `mapstructure:"domain_weights"`
	WeightsFile     string             `mapstructure:"weights_file"`
	Alerts          AuthorityAlerts    `mapstructure:"alerts"`
}

// AuthorityAlerts defines alert thresholds for credibility scoring.
type AuthorityAlerts struct {
	LowCredibility float64 `mapstructure:"low_credibility"`
}

// Normalize clamps configuration values and standardises keys.
func (c AuthorityConfig) Normalize() AuthorityConfig {
	cfg := c
	if cfg.BaseCredibility <= 0 {
		cfg.BaseCredibility = 0.5
	}
	if cfg.BaseCredibility > 1 {
		cfg.BaseCredibility = 1
	}
	if cfg.MaxDomainBonus <= 0 {
		cfg.MaxDomainBonus = 0.3
	}
	if cfg.MaxDomainBonus > 1 {
		cfg.MaxDomainBonus = 1
	}
	cfg.DomainWeights = clampWeights(cfg.DomainWeights, cfg.MaxDomainBonus)
	if cfg.Alerts.LowCredibility < 0 {
		cfg.Alerts.LowCredibility = 0
	}
	if cfg.Alerts.LowCredibility > 1 {
		cfg.Alerts.LowCredibility = 1
	}
	return cfg
}

// Validate ensures configuration is internally consistent.
func (c AuthorityConfig) Validate() error {
	if c.BaseCredibility <= 0 {
		return fmt.Errorf("authority.base_credibility must be positive")
	}
	if c.MaxDomainBonus < 0 || c.MaxDomainBonus > 1 {
		return fmt.Errorf("authority.max_domain_bonus must be between 0 and 1")
	}
	return nil
}

// LoadWeights merges the inline domain weights with the optional weights
// file. File entries win over inline ones.
func (c AuthorityConfig) LoadWeights() (map[string]float64, error) {
	merged := make(map[string]float64, len(c.DomainWeights))
	for host, w := range clampWeights(c.DomainWeights, c.MaxDomainBonus) {
		merged[host] = w
	}
	if strings.TrimSpace(c.WeightsFile) == "" {
		return merged, nil
	}

	raw, err := os.ReadFile(c.WeightsFile)
	if err != nil {
		return nil, fmt.Errorf("authority weights file: %w", err)
	}
	var fromFile map[string]float64
	if err := yaml.Unmarshal(raw, &fromFile); err != nil {
		return nil, fmt.Errorf("authority weights file %s: %w", c.WeightsFile, err)
	}
	for host, w := range clampWeights(fromFile, c.MaxDomainBonus) {
		merged[host] = w
	}
	return merged, nil
}

func clampWeights(weights map[string]float64, max float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for host, value := range weights {
		key := normalizeHost(host)
		if key == "" {
			continue
		}
		if value < 0 {
			value = 0
		}
		if value > max {
			value = max
		}
		out[key] = value
	}
	return out
}
