package branding

import "testing"

func TestEmbeddedDefaults(t *testing.T) {
	if got := CLIName(); got != "watchdog" {
		t.Errorf("CLIName() = %q, want %q", got, "watchdog")
	}
	if got := GitHubOrg(); got != "agenthatchery" {
		t.Errorf("GitHubOrg() = %q, want %q", got, "agenthatchery")
	}
	if got := GoModule(); got != "github.com/agenthatchery/watchdog" {
		t.Errorf("GoModule() = %q", got)
	}
	if got := GitHubRepo(); got != "cradle" {
		t.Errorf("GitHubRepo() = %q, want %q", got, "cradle")
	}
}

func TestEnvVar(t *testing.T) {
	if got := EnvVar("branch"); got != "WATCHDOG_BRANCH" {
		t.Errorf("EnvVar(branch) = %q, want WATCHDOG_BRANCH", got)
	}
}
