// Package version reports the build version of devteam.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Override replaces the embedded version when set at link time:
//
//	go build -ldflags "-X github.com/ShayCichocki/devteam/internal/version.Override=v1.2.3"
var Override string

// Get returns the current version, with whitespace trimmed
func Get() string {
	if Override != "" {
		return strings.TrimSpace(Override)
	}
	if v := strings.TrimSpace(versionContent); v != "" {
		return v
	}
	return "dev"
}
