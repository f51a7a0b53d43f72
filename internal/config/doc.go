// Package config resolves supervisor settings from the environment and an
// optional YAML file at <data_dir>/watchdog/config.yaml. Environment wins over
// the file, and the file wins over the built-in defaults. Repository and data
// settings keep the unprefixed names the managed application already reads
// (GITHUB_PAT, GITHUB_ORG, GITHUB_REPO, DATA_DIR, LOG_LEVEL); everything else
// uses the WATCHDOG_ prefix.
package config
