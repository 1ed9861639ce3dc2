// Package sync keeps one save blob consistent between local storage and a
// single remote file in the user's application-private namespace.
//
// The Controller resolves or creates the remote file once per session,
// republishes its content at session start and pushes every local save to it.
package sync

const (
	// SaveFilename is the logical name of the remote save file
	SaveFilename = "config.json"
	// AppDataNamespace is the per-user, application-private remote namespace
	AppDataNamespace = "appDataFolder"
	// DefaultLocalKey is the local slot the governing program saves under
	DefaultLocalKey = "savestate"
)

// SaveBlob is the opaque serialized application state
type SaveBlob string

// Handle identifies the remote save file within one session
type Handle string
