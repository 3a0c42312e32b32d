package pty

import "errors"

var (
	// ErrUnavailableHandle is returned when a handle is not in the session table.
	ErrUnavailableHandle = errors.New("pty: unavailable handle")
	// ErrNoProcessID is returned when a spawned child reports no pid.
	ErrNoProcessID = errors.New("pty: no process id for spawned child")
)

// User-facing notification messages.
const (
	msgCreate = "There was an error creating the shell session."
	msgNoPID  = "Could not open terminal"
	msgWrite  = "There was an error writing to the shell session."
	msgRead   = "There was an error reading from the shell session."
	msgResize = "There was an error resizing the shell session."
	msgEnd    = "There was an error ending the shell session."
	msgWait   = "There was an error waiting for the shell session to exit."
	msgStatus = "There was an error getting the shell session exit code."
)
