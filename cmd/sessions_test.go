package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/coverage-cli/internal/session"
)

func TestFormatSession_OmitsValues(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	sess := &session.Session{
		Source:  "inc42",
		Domain:  ".inc42.com",
		SavedAt: now.Add(-time.Hour),
		Cookies: []session.Cookie{
			{Name: "sid", Value: "super-secret", Domain: ".inc42.com", Path: "/", Expiry: now.Add(24 * time.Hour).Unix()},
			{Name: "old", Value: "also-secret", Domain: ".inc42.com", Path: "/", Expiry: now.Add(-time.Hour).Unix()},
			{Name: "pref", Value: "x", Domain: ".inc42.com"},
		},
	}

	var buf bytes.Buffer
	formatSession(&buf, sess, now)

	output := buf.String()
	assert.Contains(t, output, "inc42")
	assert.Contains(t, output, "Live:   2/3")
	assert.Contains(t, output, "sid")
	assert.Contains(t, output, "2025-06-16 10:00")
	assert.Contains(t, output, "expired")
	assert.Contains(t, output, "session")
	assert.NotContains(t, output, "super-secret")
	assert.NotContains(t, output, "also-secret")
}
