package coprocessor

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flashbots/richest-revealer/crypto"
	"github.com/flashbots/richest-revealer/protocol"
	"github.com/google/uuid"
	"go.uber.org/atomic"
)

var (
	ErrUnknownHandle    = errors.New("unknown handle")
	ErrHandleNotAllowed = errors.New("handle not allowed for consumer")
	ErrEmptyInput       = errors.New("no handles to compare")
	ErrNoDelivery       = errors.New("no delivery target")

	ErrHandleNotDecryptable = errors.New("handle is not a selection result")
)

// LocalConfig configures a Local coprocessor.
type LocalConfig struct {
	// ExchangeKey decrypts stored ciphertexts. Generated when nil.
	ExchangeKey *ecdh.PrivateKey

	// Delivery receives plaintexts for RequestDecryption.
	Delivery protocol.DeliveryFunc

	// DeliveryDelay postpones each delivery.
	DeliveryDelay time.Duration

	Log *slog.Logger
}

type record struct {
	msg  *crypto.EncryptedMessage
	ectx crypto.EncryptionContext

	// result marks SelectMaxIndex outputs, the only decryptable records.
	result bool
}

type job struct {
	id      protocol.JobID
	handle  protocol.Handle
	deliver protocol.DeliveryFunc
}

// Local is an in-process confidential coprocessor.
type Local struct {
	exchangeKey *ecdh.PrivateKey
	delivery    protocol.DeliveryFunc
	delay       time.Duration
	log         *slog.Logger

	mu      sync.Mutex
	records map[protocol.Handle]record
	queue   []job
	notify  chan struct{}

	delivered atomic.Uint64
	failed    atomic.Uint64
}

// NewLocal creates a coprocessor. Deliveries start once Run is called.
func NewLocal(cfg *LocalConfig) (*Local, error) {
	key := cfg.ExchangeKey
	if key == nil {
		var err error
		key, err = ecdh.P256().GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate exchange key: %w", err)
		}
	}
	if key.Curve() != ecdh.P256() {
		return nil, errors.New("exchange key must be P-256")
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Local{
		exchangeKey: key,
		delivery:    cfg.Delivery,
		delay:       cfg.DeliveryDelay,
		log:         log.With("component", "coprocessor"),
		records:     make(map[protocol.Handle]record),
		notify:      make(chan struct{}, 1),
	}, nil
}

// ExchangePublicKey is the key clients encrypt inputs to.
func (l *Local) ExchangePublicKey() *ecdh.PublicKey {
	return l.exchangeKey.PublicKey()
}

// SetDelivery replaces the default delivery target.
func (l *Local) SetDelivery(delivery protocol.DeliveryFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delivery = delivery
}

// Encrypt encrypts value on behalf of a trusted caller.
func (l *Local) Encrypt(_ context.Context, value uint64, ectx crypto.EncryptionContext) (protocol.Handle, error) {
	msg, err := crypto.EncryptValue(l.exchangeKey.PublicKey(), value, ectx)
	if err != nil {
		return protocol.Handle{}, err
	}
	return l.store(msg, ectx, false)
}

// Ingest accepts a client-side encrypted value. The ciphertext must open
// under ectx, so an input cannot be replayed by another submitter or round.
func (l *Local) Ingest(_ context.Context, ciphertext []byte, ectx crypto.EncryptionContext) (protocol.Handle, error) {
	msg, err := crypto.ParseEncryptedMessage(ciphertext)
	if err != nil {
		return protocol.Handle{}, fmt.Errorf("%w: %w", protocol.ErrInvalidInput, err)
	}

	plaintext, err := crypto.Decrypt(l.exchangeKey, msg, ectx)
	if err != nil {
		return protocol.Handle{}, fmt.Errorf("%w: not bound to context: %w", protocol.ErrInvalidInput, err)
	}
	if _, err := crypto.DecodeValue(plaintext); err != nil {
		return protocol.Handle{}, fmt.Errorf("%w: %w", protocol.ErrInvalidInput, err)
	}

	return l.store(msg, ectx, false)
}

func (l *Local) store(msg *crypto.EncryptedMessage, ectx crypto.EncryptionContext, result bool) (protocol.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		h, err := protocol.NewRandomHandle()
		if err != nil {
			return protocol.Handle{}, err
		}
		if _, taken := l.records[h]; taken || h.IsZero() {
			continue
		}
		l.records[h] = record{msg: msg, ectx: ectx, result: result}
		return h, nil
	}
}

// open decrypts a stored value after checking consumer access.
func (l *Local) open(consumer crypto.Address, h protocol.Handle) (uint64, error) {
	l.mu.Lock()
	rec, ok := l.records[h]
	l.mu.Unlock()

	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	if rec.ectx.Consumer != consumer {
		return 0, fmt.Errorf("%w: %s", ErrHandleNotAllowed, h)
	}

	plaintext, err := crypto.Decrypt(l.exchangeKey, rec.msg, rec.ectx)
	if err != nil {
		return 0, err
	}
	return crypto.DecodeValue(plaintext)
}

// SelectMaxIndex returns a handle to the encrypted index of the largest value.
// The first occurrence wins among equal values.
func (l *Local) SelectMaxIndex(_ context.Context, consumer crypto.Address, handles []protocol.Handle) (protocol.Handle, error) {
	if len(handles) == 0 {
		return protocol.Handle{}, ErrEmptyInput
	}

	var best, bestIndex uint64
	for i, h := range handles {
		v, err := l.open(consumer, h)
		if err != nil {
			return protocol.Handle{}, err
		}
		if i == 0 || v > best {
			best, bestIndex = v, uint64(i)
		}
	}

	ectx := crypto.EncryptionContext{Owner: consumer, Consumer: consumer}
	msg, err := crypto.EncryptValue(l.exchangeKey.PublicKey(), bestIndex, ectx)
	if err != nil {
		return protocol.Handle{}, err
	}
	return l.store(msg, ectx, true)
}

// RequestDecryption schedules delivery of handle's plaintext to the default
// delivery target.
func (l *Local) RequestDecryption(ctx context.Context, consumer crypto.Address, h protocol.Handle) (protocol.JobID, error) {
	l.mu.Lock()
	deliver := l.delivery
	l.mu.Unlock()

	if deliver == nil {
		return "", ErrNoDelivery
	}
	return l.RequestDecryptionTo(ctx, consumer, h, deliver)
}

// RequestDecryptionTo schedules delivery of handle's plaintext to deliver.
// It returns as soon as the job is queued. Only selection results are
// decryptable; inputs never leave the coprocessor as plaintext.
func (l *Local) RequestDecryptionTo(_ context.Context, consumer crypto.Address, h protocol.Handle, deliver protocol.DeliveryFunc) (protocol.JobID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[h]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	if rec.ectx.Consumer != consumer {
		return "", fmt.Errorf("%w: %s", ErrHandleNotAllowed, h)
	}
	if !rec.result {
		return "", fmt.Errorf("%w: %s", ErrHandleNotDecryptable, h)
	}

	id := protocol.JobID(uuid.NewString())
	l.queue = append(l.queue, job{id: id, handle: h, deliver: deliver})

	select {
	case l.notify <- struct{}{}:
	default:
	}

	return id, nil
}

// Pending returns the number of queued decryption jobs.
func (l *Local) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Stats returns the number of delivered and failed jobs.
func (l *Local) Stats() (delivered, failed uint64) {
	return l.delivered.Load(), l.failed.Load()
}

// Run processes decryption jobs until ctx is cancelled.
func (l *Local) Run(ctx context.Context) {
	for {
		l.mu.Lock()
		var next *job
		if len(l.queue) > 0 {
			j := l.queue[0]
			l.queue = l.queue[1:]
			next = &j
		}
		l.mu.Unlock()

		if next == nil {
			select {
			case <-ctx.Done():
				return
			case <-l.notify:
				continue
			}
		}

		if l.delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.delay):
			}
		}

		l.process(ctx, *next)
	}
}

func (l *Local) process(ctx context.Context, j job) {
	l.mu.Lock()
	rec := l.records[j.handle]
	l.mu.Unlock()

	plaintext, err := crypto.Decrypt(l.exchangeKey, rec.msg, rec.ectx)
	if err == nil {
		var value uint64
		value, err = crypto.DecodeValue(plaintext)
		if err == nil {
			err = j.deliver(ctx, protocol.Delivery{JobID: j.id, Plaintext: value})
		}
	}

	if err != nil {
		l.failed.Inc()
		l.log.Error("decryption delivery failed", "job", j.id, "err", err)
		return
	}

	l.delivered.Inc()
	l.log.Debug("decryption delivered", "job", j.id)
}
