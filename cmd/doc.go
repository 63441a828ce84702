// Package cmd provides the richest-revealer commands.
//
// # Commands
//
// oracle: Runs the confidential coprocessor. Holds the exchange key that
// participants encrypt to, evaluates the encrypted comparison and posts
// signed decryption results to the requesting revealer.
//
//	go run ./cmd/oracle --addr=:8081 --endpoint=http://localhost:8081
//	go run ./cmd/oracle --config=oracle.yaml --tdx
//
// revealer: Runs one round. Verifies the oracle registration (TEE
// attestation or a pinned key), restores the round from its store and
// serves the round API.
//
//	go run ./cmd/revealer --owner=0x... --oracle=http://localhost:8081 \
//	    --callback-url=http://localhost:8080/decryption-callback
//	go run ./cmd/revealer --config=revealer.yaml --store=postgres
//
// revealer-cli: Participant and owner tooling.
//
//	go run ./cmd/revealer-cli keygen
//	go run ./cmd/revealer-cli submit -r http://localhost:8080 --key=<hex> --value=1000
//	go run ./cmd/revealer-cli compute -r http://localhost:8080 --key=<owner hex>
//	go run ./cmd/revealer-cli request-decryption -r http://localhost:8080 --key=<owner hex>
//	go run ./cmd/revealer-cli wait -r http://localhost:8080
//
// # Configuration
//
// The oracle and revealer read the same YAML layout via --config.
// Command-line flags override config file values.
//
//	http:
//	  addr: ":8080"
//	  metrics_addr: ":9090"
//	  cors_origins: ["http://localhost:3000"]
//	log:
//	  json: true
//	round:
//	  id: "round-1"
//	  capacity: 3
//	  owner: "0x..."
//	oracle:
//	  url: "http://localhost:8081"
//	  callback_url: "http://localhost:8080/decryption-callback"
//	  measurements_url: ""
//	store:
//	  driver: "postgres"
//	  postgres:
//	    host: "localhost"
//	    port: 5432
//	    user: "postgres"
//	    database: "richest"
//	keys:
//	  signing_key: ""
//	  exchange_key: ""
package cmd
