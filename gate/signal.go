package gate

import "net/url"

// ForceSignalParam is the deep-link query parameter that forces biometric
// entry, used for PWA recovery when normal admin navigation is unavailable.
const ForceSignalParam = "stepup"

// ConsumeForceSignal reports whether the one-shot force-biometric entry
// signal is present and returns the URL with the parameter stripped. The
// signal is URL-bound and never persisted.
func ConsumeForceSignal(u *url.URL) (bool, *url.URL) {
	q := u.Query()
	if !q.Has(ForceSignalParam) {
		return false, u
	}
	q.Del(ForceSignalParam)
	stripped := *u
	stripped.RawQuery = q.Encode()
	return true, &stripped
}
