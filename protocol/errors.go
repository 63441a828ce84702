package protocol

import "errors"

var (
	ErrDuplicateSubmission      = errors.New("already submitted")
	ErrCapacityExceeded         = errors.New("participant capacity reached")
	ErrUnauthorized             = errors.New("caller is not the round owner")
	ErrInsufficientParticipants = errors.New("not enough participants")
	ErrAlreadyComputed          = errors.New("already computed")
	ErrNotReady                 = errors.New("result not computed")
	ErrAlreadyRequested         = errors.New("decryption already requested")
	ErrUnknownJob               = errors.New("unknown decryption job")

	ErrInvalidInput     = errors.New("encrypted input rejected")
	ErrInvalidHandle    = errors.New("invalid ciphertext handle")
	ErrResultOutOfRange = errors.New("revealed index out of range")
	ErrCoprocessor      = errors.New("coprocessor failure")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrDuplicateSubmission, "duplicate_submission"},
	{ErrCapacityExceeded, "capacity_exceeded"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInsufficientParticipants, "insufficient_participants"},
	{ErrAlreadyComputed, "already_computed"},
	{ErrNotReady, "not_ready"},
	{ErrAlreadyRequested, "already_requested"},
	{ErrUnknownJob, "unknown_job"},
	{ErrInvalidInput, "invalid_input"},
	{ErrInvalidHandle, "invalid_handle"},
	{ErrResultOutOfRange, "result_out_of_range"},
	{ErrCoprocessor, "coprocessor_failure"},
}

// ErrorCode returns a stable identifier for a round error, or "internal"
// for errors outside the round taxonomy.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}
