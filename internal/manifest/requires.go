package manifest

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// DevVersion is the version string of builds without ldflags.
const DevVersion = "dev"

// CheckRequires reports whether supervisorVersion satisfies the manifest's
// requires constraint. A manifest without a constraint and a dev build
// satisfy everything.
func (m *AppManifest) CheckRequires(supervisorVersion string) error {
	if m == nil || m.Requires == "" || supervisorVersion == DevVersion {
		return nil
	}

	constraint, err := semver.NewConstraint(m.Requires)
	if err != nil {
		return fmt.Errorf("parsing requires %q: %w", m.Requires, err)
	}
	v, err := semver.NewVersion(strings.TrimPrefix(supervisorVersion, "v"))
	if err != nil {
		return fmt.Errorf("parsing supervisor version %q: %w", supervisorVersion, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("application requires supervisor %s, running %s", m.Requires, supervisorVersion)
	}
	return nil
}
