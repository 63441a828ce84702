// Package tdx attests and verifies oracle registrations with Intel TDX.
//
// TDXProvider quotes through the local configfs device, RemoteDCAPProvider
// through an attestation sidecar, and DummyProvider echoes the report data
// for development. All of them return measurements as register index to
// value: 0 is MRTD and 1..4 are RTMR0..RTMR3.
package tdx
