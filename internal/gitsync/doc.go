// Package gitsync keeps the live working copy synchronized with the remote
// repository by shelling out to git. It clones on a cold start, fast-forwards
// on every later sync, and falls back to copying the bootstrap snapshot when
// the remote cannot be reached and nothing usable is on disk yet.
//
// The access token travels inside the remote URL. Every log line, error and
// stored message produced here goes through Redact first.
package gitsync
