package service

import "fmt"

// UnavailableReason says why no classifier could be acquired
type UnavailableReason string

const (
	ReasonDisabled          UnavailableReason = "disabled"
	ReasonDependencyMissing UnavailableReason = "dependency_missing"
	ReasonLoadFailed        UnavailableReason = "load_failed"
	ReasonTimeout           UnavailableReason = "timeout"
)

// Acquisition is the outcome of trying to obtain a classifier: either
// Acquired with a handle, or Unavailable with a reason. Callers branch on
// Classifier's second return value, never on a nil handle alone.
type Acquisition struct {
	classifier Classifier
	reason     UnavailableReason
	err        error
}

// Acquired wraps a working classifier
func Acquired(c Classifier) Acquisition {
	if c == nil {
		return Unavailable(ReasonLoadFailed, fmt.Errorf("nil classifier"))
	}
	return Acquisition{classifier: c}
}

// Unavailable records that no classifier is present
func Unavailable(reason UnavailableReason, err error) Acquisition {
	return Acquisition{reason: reason, err: err}
}

// Classifier returns the handle and whether it was acquired
func (a Acquisition) Classifier() (Classifier, bool) {
	return a.classifier, a.classifier != nil
}

// Reason is empty when the classifier was acquired
func (a Acquisition) Reason() UnavailableReason {
	return a.reason
}

// Err is the failure that made the classifier unavailable, if any
func (a Acquisition) Err() error {
	return a.err
}

func (a Acquisition) String() string {
	if a.classifier != nil {
		return "acquired(" + a.classifier.ModelID() + ")"
	}
	if a.err != nil {
		return fmt.Sprintf("unavailable(%s): %v", a.reason, a.err)
	}
	return "unavailable(" + string(a.reason) + ")"
}
