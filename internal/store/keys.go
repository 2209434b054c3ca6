package store

// Storage key layout. Global keys keep the names the web client always used;
// per-scheme keys are namespaced by a scheme token, with "null" standing in
// for the unscoped dialog.
const (
	// KeyActiveScheme holds the id of the scheme currently in focus.
	KeyActiveScheme = "activeSchemeId"

	// KeyAuthToken holds the bearer token for the remote service.
	KeyAuthToken = "AUTH_TOKEN"

	// NullToken is the scheme token used when no scheme is selected.
	NullToken = "null"
)

// TranscriptKey names the persisted transcript for one scheme token.
func TranscriptKey(token string) string {
	return "dialog:" + token
}

// ActiveFlagKey names the "session is live" marker for one scheme token.
func ActiveFlagKey(token string) string {
	return "dialogActive:" + token
}

// SnapshotKey names the persisted tree/score snapshot for one scheme token.
func SnapshotKey(token string) string {
	return "dialogState:" + token
}
