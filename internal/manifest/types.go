package manifest

// FileName is the manifest file looked up at the working-copy root.
const FileName = "watchdog.yaml"

// AppManifest is the parsed watchdog.yaml.
type AppManifest struct {
	Run     *RunSpec     `yaml:"run,omitempty" json:"run,omitempty"`
	Install *InstallSpec `yaml:"install,omitempty" json:"install,omitempty"`
	// Requires is a semver constraint on the supervisor version, e.g. ">=0.2.0".
	Requires string `yaml:"requires,omitempty" json:"requires,omitempty"`
}

// RunSpec declares how the application is started.
type RunSpec struct {
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// InstallSpec declares the dependency manifest and installer.
type InstallSpec struct {
	Manifest string `yaml:"manifest,omitempty" json:"manifest,omitempty"`
	// Command is split on whitespace; {manifest} is replaced with the
	// manifest's absolute path.
	Command string `yaml:"command,omitempty" json:"command,omitempty"`
}

// Argv returns the run command and its arguments as one slice.
func (r *RunSpec) Argv() []string {
	if r == nil || r.Command == "" {
		return nil
	}
	return append([]string{r.Command}, r.Args...)
}
