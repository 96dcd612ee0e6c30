package spec

import (
	"fmt"
	"regexp"
	"strings"
)

// Owner is whatever owns an entity ID: in practice an entity adapter that
// knows its device's hardware address.
type Owner interface {
	UniqueMAC() string
}

// macSuffixLen is the number of trailing hex digits of the MAC kept in IDs.
const macSuffixLen = 4

var (
	validDomain = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	nonSlug     = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify lowercases s and collapses every run of non-alphanumerics to "_".
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// generateEntityID builds "{domain}.{model}_{mac}_{key}", skipping empty parts.
func generateEntityID(model string, owner Owner, key, domain string) (string, error) {
	if !validDomain.MatchString(domain) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	keySlug := Slugify(key)
	if keySlug == "" {
		return "", fmt.Errorf("%w: domain %s", ErrEmptyKey, domain)
	}

	parts := make([]string, 0, 3)
	if m := Slugify(model); m != "" {
		parts = append(parts, m)
	}
	if owner != nil {
		if mac := macSuffix(owner.UniqueMAC()); mac != "" {
			parts = append(parts, mac)
		}
	}
	parts = append(parts, keySlug)

	return domain + "." + strings.Join(parts, "_"), nil
}

func macSuffix(mac string) string {
	hex := Slugify(strings.NewReplacer(":", "", "-", "").Replace(mac))
	hex = strings.ReplaceAll(hex, "_", "")
	if len(hex) > macSuffixLen {
		hex = hex[len(hex)-macSuffixLen:]
	}
	return hex
}
