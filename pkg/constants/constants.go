// Package constants holds names and defaults shared across packages.
package constants

import (
	"path/filepath"
	"time"
)

// CLIName is the binary name used in help text and SARIF tool metadata.
const CLIName = "gh-uses"

// CLIExtensionPrefix is used when the binary runs as a gh extension.
const CLIExtensionPrefix = "gh uses"

// ReleaseRepository publishes gh-uses releases.
const ReleaseRepository = "githubnext/gh-uses"

// InformationURI is reported as the SARIF tool information URI.
const InformationURI = "https://github.com/githubnext/gh-uses"

// Traversal and resolution defaults.
const (
	DefaultMaxDepth       = 10
	MaxMaxDepth           = 1000
	DefaultConcurrency    = 8
	MaxConcurrency        = 64
	DefaultResolveTimeout = 30 * time.Second
	MaxTimeoutSeconds     = 600
	DefaultRateLimit      = 10.0
	DefaultWatchDebounce  = 300 * time.Millisecond
)

// Environment variables that override configuration values.
const (
	EnvMaxDepth       = "GH_USES_MAX_DEPTH"
	EnvConcurrency    = "GH_USES_CONCURRENCY"
	EnvTimeoutSeconds = "GH_USES_TIMEOUT_SECONDS"
	EnvCacheDir       = "GH_USES_CACHE_DIR"
)

// ConfigFileNames are looked up at the scan root in this order.
var ConfigFileNames = []string{".gh-uses.yml", ".gh-uses.yaml", ".gh-uses.toml"}

// ActionFileNames are the metadata file names of an action directory, in
// lookup order.
var ActionFileNames = []string{"action.yml", "action.yaml"}

// SkippedDirs are never descended into during discovery.
var SkippedDirs = []string{".git", "node_modules"}

// GetWorkflowDir returns the repository-relative workflow directory.
func GetWorkflowDir() string {
	return filepath.Join(".github", "workflows")
}

// DefaultWorkflowPatterns match workflow entry documents.
var DefaultWorkflowPatterns = []string{
	".github/workflows/*.yml",
	".github/workflows/*.yaml",
}

// DefaultActionPatterns match action metadata files anywhere in the tree.
var DefaultActionPatterns = []string{
	"**/action.yml",
	"**/action.yaml",
}
