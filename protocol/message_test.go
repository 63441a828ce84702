package protocol

import (
	"bytes"
	"testing"

	"github.com/flashbots/richest-revealer/crypto"
	"github.com/stretchr/testify/require"
)

func TestSignedDecodeAndRecover(t *testing.T) {
	pub, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	signed, err := NewSigned(priv, &ComputeRequest{RoundID: "r1"})
	require.NoError(t, err)
	data, err := SerializeMessage(signed)
	require.NoError(t, err)

	decoded, err := DecodeMessage[Signed[ComputeRequest]](bytes.NewReader(data))
	require.NoError(t, err)
	req, signer, err := decoded.Recover()
	require.NoError(t, err)
	require.Equal(t, "r1", req.RoundID)
	require.True(t, signer.Equal(pub))

	// Payload swapped after signing.
	decoded.Object = &ComputeRequest{RoundID: "r2"}
	_, _, err = decoded.Recover()
	require.Error(t, err)

	// Public key swapped after signing.
	otherPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	unmarshaled, err := UnmarshalMessage[Signed[ComputeRequest]](data)
	require.NoError(t, err)
	unmarshaled.PublicKey = otherPub
	_, _, err = unmarshaled.Recover()
	require.Error(t, err)

	_, _, err = (&Signed[ComputeRequest]{PublicKey: pub}).Recover()
	require.Error(t, err)

	_, err = DecodeMessage[Signed[ComputeRequest]](bytes.NewReader([]byte("{")))
	require.Error(t, err)
}
