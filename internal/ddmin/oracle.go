package ddmin

import "context"

// Oracle decides whether an input still reproduces the failure.
//
// Run returns the target's status for input: 0 means the target ran cleanly,
// any other value means the failure reproduced. A non-nil error means the
// oracle could not produce a verdict at all (the target is missing, the
// context was cancelled); the Minimizer stops and returns it.
type Oracle interface {
	Run(ctx context.Context, target string, input []byte) (int, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, target string, input []byte) (int, error)

// Run implements Oracle.
func (f OracleFunc) Run(ctx context.Context, target string, input []byte) (int, error) {
	return f(ctx, target, input)
}

// Predicate returns an Oracle that reports status 1 whenever fails(input) is true.
// The target argument is ignored.
func Predicate(fails func(input []byte) bool) Oracle {
	return OracleFunc(func(_ context.Context, _ string, input []byte) (int, error) {
		if fails(input) {
			return 1, nil
		}
		return 0, nil
	})
}

// Fails reports whether an oracle status means the failure reproduced.
func Fails(status int) bool {
	return status != 0
}
