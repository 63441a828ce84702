/*
Package testutil provides fixtures for testing richest-revealer components.

# Round Configuration

NewTestRoundConfig returns a three-participant round with deterministic owner
and contract addresses, customizable with options:

	cfg := testutil.NewTestRoundConfig(
	    testutil.WithCapacity(5),
	    testutil.WithOwner(owner.Address()),
	)

# Identities

	participants := testutil.MustParticipants(t, 3)
	addr := testutil.GenerateTestAddress(0xaa)

# Submissions

EncryptWealth and SignedSubmission produce inputs exactly as a participant's
client would: encrypted to the oracle exchange key and bound to the
participant's address and the round contract.

	signed, _ := testutil.SignedSubmission(local.ExchangePublicKey(), participants[0], cfg, 1000)

# Coprocessor

StartLocalCoprocessor runs an in-process coprocessor whose delivery worker
stops when the test ends:

	local := testutil.StartLocalCoprocessor(t, nil)

This package is intended for testing purposes only and should not be used in
production code.
*/
package testutil
