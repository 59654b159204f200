package errorsx

// ReasonCode is a short machine-readable failure class surfaced to callers
// so they can decide on retry policy themselves.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// ReasonConfig marks missing or invalid settings. Raised before dialing.
	ReasonConfig ReasonCode = "config"
	// ReasonInput marks an unusable audio container or format. Raised before dialing.
	ReasonInput ReasonCode = "input"
	// ReasonTransport marks a failed or unexpectedly closed duplex connection.
	ReasonTransport ReasonCode = "transport"
	// ReasonProtocol marks a malformed frame or an unexpected message combination.
	ReasonProtocol ReasonCode = "protocol"
	// ReasonRemote marks an explicit error-response frame from the service.
	ReasonRemote ReasonCode = "remote"
	// ReasonEmptyResult marks a session that completed without usable text.
	ReasonEmptyResult ReasonCode = "empty_result"
	// ReasonCanceled marks a session stopped by the caller's context.
	ReasonCanceled ReasonCode = "canceled"
)

// Retryable reports whether a failure class is worth retrying by a caller.
// Only transport failures qualify; everything else repeats deterministically.
func (r ReasonCode) Retryable() bool {
	return r == ReasonTransport
}
