package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// FetchPolicyConfig configures host-level fetching rules for source
// retrieval. An empty allow list permits every host not disallowed.
type FetchPolicyConfig struct {
	RespectRobots bool     `mapstructure:"respect_robots" json:"respect_robots"`
	Allow         []string `mapstructure:"allow" json:"allow"`
	Disallow      []string `mapstructure:"disallow" json:"disallow"`
	Paywall       []string `mapstructure:"paywall" json:"paywall"`
}

// Normalize cleans entries and removes duplicates.
func (c FetchPolicyConfig) Normalize() FetchPolicyConfig {
	norm := c
	norm.Allow = sanitizeDomainList(norm.Allow)
	norm.Disallow = sanitizeDomainList(norm.Disallow)
	norm.Paywall = sanitizeDomainList(norm.Paywall)
	return norm
}

// Validate ensures configured policy entries do not conflict and are well-formed.
func (c FetchPolicyConfig) Validate() error {
	norm := c.Normalize()

	allow := make(map[string]struct{}, len(norm.Allow))
	for _, host := range norm.Allow {
		allow[host] = struct{}{}
	}
	disallow := make(map[string]struct{}, len(norm.Disallow))
	for _, host := range norm.Disallow {
		if _, ok := allow[host]; ok {
			return fmt.Errorf("fetch policy conflict: host %q present in both allow and disallow lists", host)
		}
		disallow[host] = struct{}{}
	}
	for _, host := range norm.Paywall {
		if host == "" {
			return fmt.Errorf("fetch policy paywall entry must not be empty")
		}
		if _, ok := disallow[host]; ok {
			return fmt.Errorf("fetch policy conflict: host %q marked disallow and paywall", host)
		}
	}
	return nil
}

// Allows reports whether the policy permits fetching the given host.
func (c FetchPolicyConfig) Allows(host string) bool {
	host = normalizeHost(host)
	if host == "" {
		return false
	}
	for _, blocked := range c.Disallow {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return false
		}
	}
	if len(c.Allow) == 0 {
		return true
	}
	for _, allowed := range c.Allow {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// Paywalled reports whether the host is known to sit behind a paywall.
func (c FetchPolicyConfig) Paywalled(host string) bool {
	host = normalizeHost(host)
	for _, pw := range c.Paywall {
		if host == pw || strings.HasSuffix(host, "."+pw) {
			return true
		}
	}
	return false
}

func sanitizeDomainList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		host := normalizeHost(raw)
		if host == "" {
			continue
		}
		seen[host] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

func normalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if u, err := url.Parse(value); err == nil && u.Host != "" {
			return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
		}
	}
	value = strings.TrimPrefix(value, "www.")
	return value
}
