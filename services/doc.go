/*
# Services Package

The services package exposes the richest-participant round and its
confidential coprocessor over HTTP.

## Components

### RevealerService (`revealer.go`)

Wraps a `protocol.Round`. Mutating requests are `protocol.Signed` envelopes;
the signer's address is the caller identity.

  - `POST /submit-wealth` - Submit a client-encrypted value
  - `POST /compute-richest` - Owner runs the encrypted comparison
  - `POST /request-decryption` - Owner asks the oracle to reveal the winner index
  - `POST /decryption-callback` - Oracle delivers the plaintext index
  - `GET /participants/count`, `GET /participants`, `GET /participants/{index}`
  - `GET /can-request-decryption`
  - `GET /result/revealed`, `GET /result/richest`, `GET /result/encrypted`
  - `GET /round` - Full round record
  - `GET /oracle` - The oracle trusted for callbacks

Every transition is persisted through a `RoundStore` (`InMemoryStore` or
`PostgresStore`) and the round is restored from it on start.

### OracleService (`oracle.go`)

Serves a `coprocessor.Local` to one or more revealers. Requests are signed
and the consumer address must be the signer, so a revealer can only compute
on and decrypt handles bound to itself.

  - `GET /registration` - Signed, optionally attested, oracle description
  - `POST /input` - Ingest a client-encrypted value
  - `POST /select-max` - Encrypted index of the maximum
  - `POST /request-decryption` - Schedule a signed callback with the plaintext
  - `POST /encrypt` - Encrypt a plaintext value (development only)

### Oracle trust (`trust.go`, `measurements.go`)

A revealer accepts callbacks from exactly one oracle key. The key is either
pinned in configuration or taken from a registration whose TEE attestation
binds SHA-256(exchange key || endpoint || public key) and whose measurements
match a `MeasurementSource`.

## Errors

Errors are JSON `{"error": "...", "code": "..."}`. Round errors use
`protocol.ErrorCode`: conflicts map to 409, `unauthorized` to 403,
`unknown_job` to 404, invalid input to 400 and coprocessor failures to 502.

### RevealerClient (`revealer_client.go`)

Typed client for the revealer API used by participants and the owner.
`SubmitWealth` encrypts to the oracle exchange key under the caller's
address and the round contract before submitting.

## Usage

	oracleClient, _ := coprocessor.NewHTTPClient(&coprocessor.HTTPClientConfig{
		BaseURL:     "http://oracle:8081",
		CallbackURL: "http://revealer:8080/decryption-callback",
		SigningKey:  revealerKey,
	})

	oracle, _ := services.ResolveOracle(ctx, &services.OracleTrustConfig{
		URL:                 "http://oracle:8081",
		AttestationProvider: &tdx.DummyProvider{},
		MeasurementSource:   services.DummyBuilds(),
	})

	revealer, _ := services.NewRevealerService(ctx, &services.RevealerConfig{
		Round:       protocol.DefaultRoundConfig(owner, oracleClient.Consumer()),
		Coprocessor: oracleClient,
		Oracle:      oracle,
	})

	r := chi.NewRouter()
	revealer.RegisterRoutes(r)
*/
package services
