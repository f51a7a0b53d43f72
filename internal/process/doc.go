// Package process launches the managed application as a child process and
// reports how it ended. At most one child runs at a time; the Runner refuses
// a second concurrent start with ErrBusy.
package process
