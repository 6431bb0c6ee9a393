package errors

// Domain sentinels. Callers match these with errors.Is; the arbiter and
// confirmation manager translate them into audit events and spoken
// fallbacks rather than surfacing them to the device raw.
var (
	// ErrDuplexConflict is returned when a capture or playback request
	// would violate half-duplex mutual exclusion.
	ErrDuplexConflict = New(KindDomain, "duplex", "half-duplex conflict")

	// ErrConfirmationExpired is returned when a confirmation reply
	// arrives after the deadline has passed.
	ErrConfirmationExpired = New(KindDomain, "confirm", "confirmation window expired")
)

// ASRError wraps a recognition-path failure.
func ASRError(op string, err error) *Error {
	return Wrap(KindAudio, op, "asr failure", err)
}

// TTSError wraps a synthesis-path failure.
func TTSError(op string, err error) *Error {
	return Wrap(KindAudio, op, "tts failure", err)
}

// AuditSinkError wraps an audit persistence failure. These are
// operational: they are logged and counted but never veto a safety
// decision that was already made.
func AuditSinkError(op string, err error) *Error {
	return Wrap(KindStorage, op, "audit sink failure", err)
}
