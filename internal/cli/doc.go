// Package cli defines the Cobra command tree for the watchdog binary. Each
// file registers one top-level command with the root command; running the
// binary without a subcommand starts the supervisor. Commands only handle
// flags, wiring and output and delegate the work to internal packages.
package cli
