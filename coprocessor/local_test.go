package coprocessor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flashbots/richest-revealer/crypto"
	"github.com/flashbots/richest-revealer/protocol"
	"github.com/stretchr/testify/require"
)

func testAddress(b byte) crypto.Address {
	var a crypto.Address
	a[0] = b
	return a
}

var (
	owner    = testAddress(0xaa)
	contract = testAddress(0xcc)
)

func startLocal(t *testing.T, cfg *LocalConfig) *Local {
	l, err := NewLocal(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go l.Run(ctx)
	return l
}

func ingestValue(t *testing.T, l *Local, submitter crypto.Address, value uint64) protocol.Handle {
	ectx := crypto.EncryptionContext{Owner: submitter, Consumer: contract}
	msg, err := crypto.EncryptValue(l.ExchangePublicKey(), value, ectx)
	require.NoError(t, err)

	h, err := l.Ingest(context.Background(), msg.Bytes(), ectx)
	require.NoError(t, err)
	require.False(t, h.IsZero())
	return h
}

func collect(ch chan protocol.Delivery) protocol.DeliveryFunc {
	return func(_ context.Context, d protocol.Delivery) error {
		ch <- d
		return nil
	}
}

// selectMax ingests values from distinct submitters and returns the
// selection result handle.
func selectMax(t *testing.T, l *Local, values ...uint64) protocol.Handle {
	handles := make([]protocol.Handle, 0, len(values))
	for i, v := range values {
		handles = append(handles, ingestValue(t, l, testAddress(byte(i+1)), v))
	}
	result, err := l.SelectMaxIndex(context.Background(), contract, handles)
	require.NoError(t, err)
	return result
}

// decryptIndex decrypts a selection result.
func decryptIndex(t *testing.T, l *Local, h protocol.Handle) uint64 {
	ch := make(chan protocol.Delivery, 1)
	job, err := l.RequestDecryptionTo(context.Background(), contract, h, collect(ch))
	require.NoError(t, err)

	select {
	case d := <-ch:
		require.Equal(t, job, d.JobID)
		return d.Plaintext
	case <-time.After(5 * time.Second):
		t.Fatal("delivery timed out")
		return 0
	}
}

func TestLocalSelectMaxIndex(t *testing.T) {
	l := startLocal(t, &LocalConfig{})

	cases := []struct {
		values   []uint64
		expected uint64
	}{
		{[]uint64{10, 50, 30}, 1},
		{[]uint64{50, 50, 10}, 0},
		{[]uint64{7, 7, 7}, 0},
		{[]uint64{1, 2, 3}, 2},
		{[]uint64{0, 0, 1}, 2},
		{[]uint64{^uint64(0), 0, ^uint64(0)}, 0},
	}

	for _, tc := range cases {
		result := selectMax(t, l, tc.values...)
		require.Equal(t, tc.expected, decryptIndex(t, l, result), tc.values)
	}
}

func TestLocalIngestBinding(t *testing.T) {
	l := startLocal(t, &LocalConfig{})
	ctx := context.Background()

	ectx := crypto.EncryptionContext{Owner: testAddress(1), Consumer: contract}
	msg, err := crypto.EncryptValue(l.ExchangePublicKey(), 42, ectx)
	require.NoError(t, err)

	// Replayed by another submitter.
	_, err = l.Ingest(ctx, msg.Bytes(), crypto.EncryptionContext{Owner: testAddress(2), Consumer: contract})
	require.ErrorIs(t, err, protocol.ErrInvalidInput)

	// Replayed to another consumer.
	_, err = l.Ingest(ctx, msg.Bytes(), crypto.EncryptionContext{Owner: testAddress(1), Consumer: owner})
	require.ErrorIs(t, err, protocol.ErrInvalidInput)

	_, err = l.Ingest(ctx, []byte("garbage"), ectx)
	require.ErrorIs(t, err, protocol.ErrInvalidInput)

	// Not a value encoding.
	bad, err := crypto.Encrypt(l.ExchangePublicKey(), []byte("not eight bytes"), ectx)
	require.NoError(t, err)
	_, err = l.Ingest(ctx, bad.Bytes(), ectx)
	require.ErrorIs(t, err, protocol.ErrInvalidInput)

	h, err := l.Ingest(ctx, msg.Bytes(), ectx)
	require.NoError(t, err)
	v, err := l.open(contract, h)
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)
}

func TestLocalAccessControl(t *testing.T) {
	l := startLocal(t, &LocalConfig{})
	ctx := context.Background()

	h := ingestValue(t, l, testAddress(1), 5)

	_, err := l.SelectMaxIndex(ctx, owner, []protocol.Handle{h})
	require.ErrorIs(t, err, ErrHandleNotAllowed)

	_, err = l.RequestDecryptionTo(ctx, owner, h, collect(make(chan protocol.Delivery, 1)))
	require.ErrorIs(t, err, ErrHandleNotAllowed)

	unknown, err := protocol.NewRandomHandle()
	require.NoError(t, err)
	_, err = l.SelectMaxIndex(ctx, contract, []protocol.Handle{h, unknown})
	require.ErrorIs(t, err, ErrUnknownHandle)

	_, err = l.RequestDecryptionTo(ctx, contract, unknown, collect(make(chan protocol.Delivery, 1)))
	require.ErrorIs(t, err, ErrUnknownHandle)

	_, err = l.SelectMaxIndex(ctx, contract, nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = l.RequestDecryption(ctx, contract, h)
	require.ErrorIs(t, err, ErrNoDelivery)
}

func TestLocalInputsAreNotDecryptable(t *testing.T) {
	ch := make(chan protocol.Delivery, 4)
	l := startLocal(t, &LocalConfig{Delivery: collect(ch)})
	ctx := context.Background()

	input := ingestValue(t, l, testAddress(2), 50)
	_, err := l.RequestDecryptionTo(ctx, contract, input, collect(ch))
	require.ErrorIs(t, err, ErrHandleNotDecryptable)
	_, err = l.RequestDecryption(ctx, contract, input)
	require.ErrorIs(t, err, ErrHandleNotDecryptable)

	encrypted, err := l.Encrypt(ctx, 7, crypto.EncryptionContext{Owner: testAddress(3), Consumer: contract})
	require.NoError(t, err)
	_, err = l.RequestDecryption(ctx, contract, encrypted)
	require.ErrorIs(t, err, ErrHandleNotDecryptable)
	require.Zero(t, l.Pending())

	// A selection over a single input reveals only its index.
	result, err := l.SelectMaxIndex(ctx, contract, []protocol.Handle{input})
	require.NoError(t, err)
	require.Equal(t, uint64(0), decryptIndex(t, l, result))
	require.Empty(t, ch)
}

func TestLocalEncrypt(t *testing.T) {
	l := startLocal(t, &LocalConfig{})

	h, err := l.Encrypt(context.Background(), 99, crypto.EncryptionContext{Owner: testAddress(1), Consumer: contract})
	require.NoError(t, err)
	v, err := l.open(contract, h)
	require.NoError(t, err)
	require.Equal(t, uint64(99), v)

	other := ingestValue(t, l, testAddress(2), 100)
	result, err := l.SelectMaxIndex(context.Background(), contract, []protocol.Handle{h, other})
	require.NoError(t, err)
	require.Equal(t, uint64(1), decryptIndex(t, l, result))
}

func TestLocalDeliveryIsAsynchronous(t *testing.T) {
	ch := make(chan protocol.Delivery, 1)
	l := startLocal(t, &LocalConfig{Delivery: collect(ch), DeliveryDelay: 50 * time.Millisecond})

	h := selectMax(t, l, 3, 9)
	job, err := l.RequestDecryption(context.Background(), contract, h)
	require.NoError(t, err)
	require.NotEmpty(t, job)

	select {
	case <-ch:
		t.Fatal("delivered before delay")
	default:
	}

	require.Eventually(t, func() bool { return len(ch) == 1 }, 5*time.Second, 10*time.Millisecond)
	d := <-ch
	require.Equal(t, job, d.JobID)
	require.Equal(t, uint64(1), d.Plaintext)

	delivered, failed := l.Stats()
	require.Equal(t, uint64(1), delivered)
	require.Zero(t, failed)
	require.Zero(t, l.Pending())
}

func TestLocalFailedDelivery(t *testing.T) {
	l := startLocal(t, &LocalConfig{
		Delivery: func(context.Context, protocol.Delivery) error { return errors.New("unreachable") },
	})

	h := selectMax(t, l, 3)
	_, err := l.RequestDecryption(context.Background(), contract, h)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, failed := l.Stats()
		return failed == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLocalDrivesRound(t *testing.T) {
	l := startLocal(t, &LocalConfig{})

	round, err := protocol.NewRound(protocol.DefaultRoundConfig(owner, contract), l)
	require.NoError(t, err)
	l.SetDelivery(round.Deliver)

	ctx := context.Background()

	// Ciphertexts are bound to their submitter.
	stolen, err := crypto.EncryptValue(l.ExchangePublicKey(), 1000, crypto.EncryptionContext{Owner: testAddress(1), Consumer: contract})
	require.NoError(t, err)
	_, err = round.SubmitCiphertext(ctx, testAddress(9), stolen.Bytes())
	require.ErrorIs(t, err, protocol.ErrInvalidInput)
	require.NotErrorIs(t, err, protocol.ErrCoprocessor)
	require.Zero(t, round.Count())

	for i, v := range []uint64{10, 50, 30} {
		submitter := testAddress(byte(i + 1))
		msg, err := crypto.EncryptValue(l.ExchangePublicKey(), v, crypto.EncryptionContext{Owner: submitter, Consumer: contract})
		require.NoError(t, err)
		_, err = round.SubmitCiphertext(ctx, submitter, msg.Bytes())
		require.NoError(t, err)
	}

	_, err = round.Compute(ctx, owner)
	require.NoError(t, err)
	_, err = round.RequestDecryption(ctx, owner)
	require.NoError(t, err)

	require.Eventually(t, round.IsRevealed, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, testAddress(2), round.RichestParticipants()[0].Address)
}
