package identity

import "time"

// Classification is the advisory outcome of comparing a stored identity
// with the device making the request.
type Classification string

const (
	None         Classification = "none"
	DeviceChange Classification = "device_change"
	LongAbsence  Classification = "long_absence"
)

const (
	DefaultDissimilarityThreshold = 1
	DefaultLongAbsence            = 21 * 24 * time.Hour
)

// Signals is the session context the detector cannot derive by itself.
type Signals struct {
	Authenticated   bool
	UnlinkedLetters int
}

// Detector classifies device changes. It is a heuristic: callers may use it
// to prompt for account linking, never to deny access.
type Detector struct {
	// DissimilarityThreshold is exceeded when more attributes than this differ.
	DissimilarityThreshold int
	LongAbsence            time.Duration
	Now                    func() time.Time
}

func NewDetector(threshold int, longAbsence time.Duration) *Detector {
	if threshold < 0 {
		threshold = DefaultDissimilarityThreshold
	}
	if longAbsence <= 0 {
		longAbsence = DefaultLongAbsence
	}
	return &Detector{
		DissimilarityThreshold: threshold,
		LongAbsence:            longAbsence,
		Now:                    func() time.Time { return time.Now().UTC() },
	}
}

// Classify returns DeviceChange when the fingerprint moved past the threshold
// for a visitor without a session, LongAbsence when the visitor was away
// longer than the threshold while holding letters not tied to an account,
// and None otherwise. DeviceChange wins when both apply.
func (d *Detector) Classify(stored *Identity, current Fingerprint, sig Signals) Classification {
	if stored == nil {
		return None
	}
	if !sig.Authenticated && stored.Fingerprint.Distance(current) > d.DissimilarityThreshold {
		return DeviceChange
	}
	if sig.UnlinkedLetters > 0 && d.Now().Sub(stored.LastSeenAt) > d.LongAbsence {
		return LongAbsence
	}
	return None
}
