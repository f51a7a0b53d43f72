// Package manifest reads the optional watchdog.yaml that the managed
// application ships at the root of its repository. The manifest lets the
// application declare how it is started and how its dependencies are
// installed, and which supervisor versions it expects. It is validated
// against an embedded JSON Schema; a manifest that fails validation is
// reported and ignored so a bad push cannot brick the supervisor.
package manifest
