// Package errors defines the error kinds raised by the training and
// prediction engine. Kinds are sentinel values; call sites wrap them with
// errors.Wrapf for context and callers identify a kind with errors.Is.
package errors

import "github.com/cockroachdb/errors"

// Wrapf attaches a message to err, preserving the kind it wraps.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Wrap attaches a message to err, preserving the kind it wraps.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Is reports whether err (or any error it wraps) matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// New constructs a plain error, equivalent to errors.New from the standard
// library but routed through cockroachdb/errors so it carries a stack trace.
func New(msg string) error {
	return errors.New(msg)
}

var (
	// ErrNotInitialized is returned when a query is made against a
	// block.Handle that has never been constructed (no Train/Predict
	// immutables installed).
	ErrNotInitialized = errors.New("ranger: predictor block not initialized")

	// ErrAlreadyInitialized is not returned by any operation in this
	// module: block handles are plain constructed values with no install
	// step, so there is no second install to reject.
	ErrAlreadyInitialized = errors.New("ranger: predictor block already initialized")

	// ErrSignatureMismatch is returned when a PreFormat's factor-predictor
	// signature at predict time differs from the signature recorded at
	// train time.
	ErrSignatureMismatch = errors.New("ranger: factor signature mismatch between train and predict")

	// ErrLevelNotObserved is a non-fatal warning: a factor level present
	// at predict time was never observed at train time. Rows bearing it
	// are coded with the proxy level trainLevels+1.
	ErrLevelNotObserved = errors.New("ranger: factor level not observed during training")

	// ErrArity is returned for degenerate inputs: zero rows, zero
	// predictors, or zero trees.
	ErrArity = errors.New("ranger: arity error")

	// ErrBudgetExceeded is returned when a tree's node height overshoots
	// its estimated allocation. Recoverable: the caller reallocates the
	// pre-tree arena at slopFactor growth and retries the tree.
	ErrBudgetExceeded = errors.New("ranger: tree height exceeded allocation budget")

	// ErrInternal marks an invariant violation. Fatal; never expected to
	// be triggered by caller input alone.
	ErrInternal = errors.New("ranger: internal invariant violation")
)
