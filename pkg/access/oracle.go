package access

import "context"

// Decision is a classification verdict for one image.
type Decision int

const (
	// DecisionUnknown means the oracle has not classified the image yet.
	// Unclassified content is shown; background classification is expected to
	// tag it before the next poll.
	DecisionUnknown Decision = iota
	// DecisionAllow marks the image safe for restricted viewers.
	DecisionAllow
	// DecisionBlock marks the image restricted.
	DecisionBlock
)

// Oracle is the capability interface for an external content classifier.
// The filter is constructed with either NullOracle or a real implementation;
// there is no runtime probing.
type Oracle interface {
	// Enabled reports whether a real classifier is wired in. A disabled
	// oracle makes the filter pass everything through.
	Enabled() bool
	// Enforced reports whether restriction applies to the named viewer.
	Enforced(ctx context.Context, viewer string) (bool, error)
	// Inspect classifies the image at absPath, scanning it if necessary.
	Inspect(ctx context.Context, absPath string) (Decision, error)
}

// FastOracle is optionally implemented by oracles that can answer from
// already-recorded classification state without scanning the image. The
// filter prefers it when offered.
type FastOracle interface {
	InspectFast(ctx context.Context, absPath string) (Decision, error)
}

// NullOracle is the default no-op classifier.
type NullOracle struct{}

// Enabled always reports false.
func (NullOracle) Enabled() bool { return false }

// Enforced always reports false.
func (NullOracle) Enforced(ctx context.Context, viewer string) (bool, error) {
	return false, nil
}

// Inspect always allows.
func (NullOracle) Inspect(ctx context.Context, absPath string) (Decision, error) {
	return DecisionAllow, nil
}
