package core

// SessionState is the lifecycle state of an execution session.
//
// Booting -> Mounting -> Installing -> Ready <-> PreviewAvailable
// Failed is terminal and reachable from any non-terminal state.
// Closed is terminal and reachable from any state via explicit release.
type SessionState string

const (
	SessionBooting          SessionState = "BOOTING"
	SessionMounting         SessionState = "MOUNTING"
	SessionInstalling       SessionState = "INSTALLING"
	SessionReady            SessionState = "READY"
	SessionPreviewAvailable SessionState = "PREVIEW_AVAILABLE"
	SessionFailed           SessionState = "FAILED"
	SessionClosed           SessionState = "CLOSED"
)

// IsTerminal reports whether no further transitions can occur.
func (s SessionState) IsTerminal() bool {
	return s == SessionFailed || s == SessionClosed
}

// IsReady reports whether the shell is interactive and file edits apply
// directly. PreviewAvailable is a sub-state of Ready.
func (s SessionState) IsReady() bool {
	return s == SessionReady || s == SessionPreviewAvailable
}
