// Package protocol implements the confidential "richest participant" round:
// a fixed-capacity group submits encrypted wealth values, the owner triggers
// an encrypted maximum selection, and the index of the richest participant is
// revealed only after an out-of-band decryption oracle answers a callback.
//
// # Round Lifecycle
//
// A round moves monotonically through five phases:
//
//  1. Open: participants submit encrypted values. Each identity submits once.
//  2. Full: the ledger holds exactly Capacity participants. No further
//     submissions are accepted, including from the owner.
//  3. Computed: the owner ran the encrypted comparison. The round stores an
//     encrypted winner index; nobody, the coordinator included, learns any
//     plaintext.
//  4. DecryptionRequested: the owner forwarded the encrypted index to the
//     coprocessor. The call returns a job identifier immediately.
//  5. Revealed: the oracle delivered the plaintext index for the pending job.
//     The richest participant is now public.
//
// No phase regresses and no operation partially applies: every rejected call
// leaves the round untouched.
//
// # Tie Breaking
//
// The comparison yields a single winner. When several participants hold the
// same maximum, the earliest submission wins. The reduction keeps the current
// best index unless a later value is strictly greater.
//
// # Coprocessor Boundary
//
// Encryption, comparison and decryption are delegated to a Coprocessor, an
// external confidential-computing service. The round only ever handles opaque
// ciphertext handles. Decryption is asynchronous: RequestDecryption never
// waits for the oracle and OnDecryptionCallback is driven externally. If the
// oracle never answers, the round stays in DecryptionRequested; nothing here
// retries or times out.
//
// # Concurrency
//
// Round is the single handle guarding one RoundState. All mutating calls are
// serialized end to end, including the coprocessor call they make. Reads
// return copies.
package protocol
