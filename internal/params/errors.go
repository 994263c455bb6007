package params

import "errors"

// Error taxonomy shared by every stage. Callers match with errors.Is.
var (
	// ErrInvalidArgument reports a non-positive alpha or layer count, a
	// layer index outside [0, N), or a malformed buffer or record.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrArithmeticOverflow reports a computed value that does not fit the
	// fixed-width field it is packed into.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)
