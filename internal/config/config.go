package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agenthatchery/watchdog/internal/branding"
	"github.com/spf13/viper"
)

const (
	fileName = "config"
	fileType = "yaml"

	// filePerm keeps the file private because it may hold the access token.
	filePerm os.FileMode = 0600
	dirPerm  os.FileMode = 0700
)

// ErrInvalid is returned (wrapped) when a setting fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Keys understood by Load, Get and Set.
const (
	KeyGitHubOrg    = "github_org"
	KeyGitHubRepo   = "github_repo"
	KeyGitHubPAT    = "github_pat"
	KeyRepoURL      = "repo_url"
	KeyBranch       = "branch"
	KeyCloneDepth   = "clone_depth"
	KeyDataDir      = "data_dir"
	KeyLiveDir      = "live_dir"
	KeyBootstrapDir = "bootstrap_dir"
	KeyLogsDir      = "logs_dir"
	KeyAppCommand   = "app_command"
	KeyDepsManifest = "deps_manifest"
	KeyDepsCommand  = "deps_command"
	KeyDepsTimeout  = "deps_timeout"
	KeyUpdateDelay  = "update_delay"
	KeyCrashBackoff = "crash_backoff"
	KeyStopGrace    = "stop_grace"
	KeyLogLevel     = "log_level"
	KeyLogFormat    = "log_format"
	KeyMetricsAddr  = "metrics_addr"
)

// unprefixedEnv maps keys shared with the managed application to their
// environment variable names.
var unprefixedEnv = map[string]string{
	KeyGitHubOrg:  "GITHUB_ORG",
	KeyGitHubRepo: "GITHUB_REPO",
	KeyGitHubPAT:  "GITHUB_PAT",
	KeyDataDir:    "DATA_DIR",
	KeyLogLevel:   "LOG_LEVEL",
}

// Settings is the resolved supervisor configuration.
type Settings struct {
	GitHubOrg  string
	GitHubRepo string
	// GitHubPAT is a secret. It must never be logged.
	GitHubPAT  string
	RepoURL    string
	Branch     string
	CloneDepth int

	DataDir      string
	LiveDir      string
	BootstrapDir string
	LogsDir      string

	AppCommand   []string
	DepsManifest string
	DepsCommand  string
	DepsTimeout  time.Duration

	UpdateDelay  time.Duration
	CrashBackoff time.Duration
	StopGrace    time.Duration

	LogLevel    string
	LogFormat   string
	MetricsAddr string

	// ConfigFile is the file the settings were read from, if any.
	ConfigFile string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType(fileType)
	v.SetEnvPrefix(branding.EnvPrefix())
	v.AutomaticEnv()
	for key, env := range unprefixedEnv {
		_ = v.BindEnv(key, env)
	}

	v.SetDefault(KeyGitHubOrg, branding.GitHubOrg())
	v.SetDefault(KeyGitHubRepo, branding.GitHubRepo())
	v.SetDefault(KeyBranch, "main")
	v.SetDefault(KeyCloneDepth, 0)
	v.SetDefault(KeyDataDir, "/app/data")
	v.SetDefault(KeyBootstrapDir, "/opt/cradle/bootstrap")
	v.SetDefault(KeyAppCommand, "python -m cradle.main")
	v.SetDefault(KeyDepsManifest, "requirements.txt")
	v.SetDefault(KeyDepsCommand, "pip install --no-cache-dir -q -r {manifest}")
	v.SetDefault(KeyDepsTimeout, "10m")
	v.SetDefault(KeyUpdateDelay, "2s")
	v.SetDefault(KeyCrashBackoff, "10s")
	v.SetDefault(KeyStopGrace, "10s")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "auto")
	return v
}

// DefaultFilePath returns <data_dir>/watchdog/config.yaml for the data
// directory currently selected by the environment.
func DefaultFilePath() string {
	return FilePath(newViper().GetString(KeyDataDir))
}

// FilePath returns the config file location under dataDir.
func FilePath(dataDir string) string {
	return filepath.Join(dataDir, branding.CLIName(), fileName+"."+fileType)
}

// Load resolves settings from the environment and configFile. An empty
// configFile selects DefaultFilePath. A missing file is not an error.
func Load(configFile string) (*Settings, error) {
	v := newViper()
	if configFile == "" {
		configFile = FilePath(v.GetString(KeyDataDir))
	}

	if err := readFile(v, configFile); err != nil {
		return nil, err
	}

	s := &Settings{
		GitHubOrg:    strings.TrimSpace(v.GetString(KeyGitHubOrg)),
		GitHubRepo:   strings.TrimSpace(v.GetString(KeyGitHubRepo)),
		GitHubPAT:    strings.TrimSpace(v.GetString(KeyGitHubPAT)),
		RepoURL:      strings.TrimSpace(v.GetString(KeyRepoURL)),
		Branch:       strings.TrimSpace(v.GetString(KeyBranch)),
		CloneDepth:   v.GetInt(KeyCloneDepth),
		DataDir:      v.GetString(KeyDataDir),
		LiveDir:      v.GetString(KeyLiveDir),
		BootstrapDir: v.GetString(KeyBootstrapDir),
		LogsDir:      v.GetString(KeyLogsDir),
		AppCommand:   strings.Fields(v.GetString(KeyAppCommand)),
		DepsManifest: v.GetString(KeyDepsManifest),
		DepsCommand:  v.GetString(KeyDepsCommand),
		DepsTimeout:  v.GetDuration(KeyDepsTimeout),
		UpdateDelay:  v.GetDuration(KeyUpdateDelay),
		CrashBackoff: v.GetDuration(KeyCrashBackoff),
		StopGrace:    v.GetDuration(KeyStopGrace),
		LogLevel:     v.GetString(KeyLogLevel),
		LogFormat:    v.GetString(KeyLogFormat),
		MetricsAddr:  v.GetString(KeyMetricsAddr),
	}
	if _, err := os.Stat(configFile); err == nil {
		s.ConfigFile = configFile
	}

	if s.RepoURL == "" {
		s.RepoURL = fmt.Sprintf("https://%s/%s/%s.git", branding.GitHubHost(), s.GitHubOrg, s.GitHubRepo)
	}
	if s.LiveDir == "" {
		s.LiveDir = filepath.Join(s.DataDir, "code")
	}
	if s.LogsDir == "" {
		s.LogsDir = filepath.Join(s.DataDir, "logs")
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the settings for values the supervisor cannot work with.
func (s *Settings) Validate() error {
	var problems []string

	if err := ValidateBranch(s.Branch); err != nil {
		problems = append(problems, err.Error())
	}
	u, err := url.Parse(s.RepoURL)
	if err != nil || u.Scheme == "" {
		problems = append(problems, fmt.Sprintf("repo_url %q is not an absolute URL", s.RepoURL))
	}
	if s.CloneDepth < 0 {
		problems = append(problems, "clone_depth must not be negative")
	}
	if len(s.AppCommand) == 0 {
		problems = append(problems, "app_command is empty")
	}
	if s.LiveDir == s.BootstrapDir {
		problems = append(problems, "live_dir and bootstrap_dir must be different locations")
	}
	for name, d := range map[string]time.Duration{
		KeyDepsTimeout:  s.DepsTimeout,
		KeyUpdateDelay:  s.UpdateDelay,
		KeyCrashBackoff: s.CrashBackoff,
		KeyStopGrace:    s.StopGrace,
	} {
		if d <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be a positive duration", name))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// ValidateBranch rejects branch names git would refuse or misread as flags.
func ValidateBranch(branch string) error {
	switch {
	case branch == "":
		return fmt.Errorf("branch is empty")
	case strings.HasPrefix(branch, "-"):
		return fmt.Errorf("branch %q must not start with '-'", branch)
	case strings.Contains(branch, ".."), strings.ContainsAny(branch, " ~^:?*[\\"):
		return fmt.Errorf("branch %q is not a valid ref name", branch)
	}
	return nil
}

// IsSecret reports whether key holds a credential that must not be echoed.
func IsSecret(key string) bool {
	return key == KeyGitHubPAT
}

// Get returns the raw value of key as seen through the environment and
// configFile.
func Get(configFile, key string) (string, error) {
	v := newViper()
	if configFile == "" {
		configFile = FilePath(v.GetString(KeyDataDir))
	}
	if err := readFile(v, configFile); err != nil {
		return "", err
	}
	return v.GetString(key), nil
}

// Set writes a key-value pair to configFile, creating it if needed.
func Set(configFile, key, value string) error {
	if configFile == "" {
		configFile = DefaultFilePath()
	}
	if err := os.MkdirAll(filepath.Dir(configFile), dirPerm); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Only the file's own contents are rewritten, never the environment.
	v := viper.New()
	v.SetConfigType(fileType)
	if err := readFile(v, configFile); err != nil {
		return err
	}
	v.Set(key, value)

	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.Chmod(configFile, filePerm); err != nil {
		return fmt.Errorf("securing config file: %w", err)
	}
	return nil
}

func readFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}
