// ABOUTME: Tests for console argument parsing helpers
// ABOUTME: Covers --flag value pairs, boolean flags and the --config extraction

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFlags(t *testing.T) {
	flags, positional := parseFlags(
		[]string{"abc-123", "--reason", "not staff", "--yes", "--limit=5", "extra"},
		"yes",
	)

	assert.Equal(t, []string{"abc-123", "extra"}, positional)
	assert.Equal(t, map[string]string{
		"reason": "not staff",
		"yes":    "true",
		"limit":  "5",
	}, flags)
}

func TestParseFlags_TrailingFlagIsBoolean(t *testing.T) {
	flags, positional := parseFlags([]string{"7", "--html"})
	assert.Equal(t, []string{"7"}, positional)
	assert.Equal(t, "true", flags["html"])
}

func TestExtractConfigFlag(t *testing.T) {
	t.Setenv("SAFESPACE_CONFIG", "/etc/safespace/env.yaml")

	path, rest := extractConfigFlag([]string{"admins", "list"})
	assert.Equal(t, "/etc/safespace/env.yaml", path)
	assert.Equal(t, []string{"admins", "list"}, rest)

	path, rest = extractConfigFlag([]string{"--config", "local.toml", "admins", "pending"})
	assert.Equal(t, "local.toml", path)
	assert.Equal(t, []string{"admins", "pending"}, rest)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "averylo...", truncate("averylongemail@example.com", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
