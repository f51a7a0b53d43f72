// Package branding provides compile-time identity values for the supervisor.
//
// Deployments that fork the managed application edit branding.yaml in this
// package; Go's //go:embed bakes it into the binary so the image needs no
// extra configuration for the common case.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName     string `yaml:"cli_name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
	EnvPrefix   string `yaml:"env_prefix"`
	GoModule    string `yaml:"go_module"`
	GitHubOrg   string `yaml:"github_org"`
	GitHubRepo  string `yaml:"github_repo"`
	GitHubHost  string `yaml:"github_host"`
}

func load() {
	once.Do(func() {
		// Hard defaults in case the embedded file is missing or empty.
		defaults = brand{
			CLIName:     "watchdog",
			DisplayName: "Watchdog",
			Description: "Self-updating process supervisor",
			EnvPrefix:   "WATCHDOG",
			GoModule:    "github.com/agenthatchery/watchdog",
			GitHubOrg:   "agenthatchery",
			GitHubRepo:  "cradle",
			GitHubHost:  "github.com",
		}
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "watchdog").
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name.
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// EnvPrefix returns the environment variable prefix (e.g., "WATCHDOG").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// GoModule returns the Go module path.
func GoModule() string { load(); return defaults.GoModule }

// GitHubOrg returns the default owner of the managed repository.
func GitHubOrg() string { load(); return defaults.GitHubOrg }

// GitHubRepo returns the default name of the managed repository.
func GitHubRepo() string { load(); return defaults.GitHubRepo }

// GitHubHost returns the git host used to build the default clone URL.
func GitHubHost() string { load(); return defaults.GitHubHost }

// EnvVar returns a fully qualified env var name, e.g., EnvVar("BRANCH") → "WATCHDOG_BRANCH".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
