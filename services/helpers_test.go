package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flashbots/richest-revealer/coprocessor"
	"github.com/flashbots/richest-revealer/crypto"
	"github.com/flashbots/richest-revealer/protocol"
	"github.com/flashbots/richest-revealer/testutil"
	"github.com/stretchr/testify/require"
)

func testAddress(b byte) crypto.Address {
	var a crypto.Address
	a[0] = b
	return a
}

type testKey struct {
	pub  crypto.PublicKey
	priv crypto.PrivateKey
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	p, err := testutil.GenerateTestParticipant()
	require.NoError(t, err)
	return testKey{pub: p.PublicKey, priv: p.PrivateKey}
}

func (k testKey) address() crypto.Address {
	return k.pub.Address()
}

func startLocal(t *testing.T) *coprocessor.Local {
	return testutil.StartLocalCoprocessor(t, nil)
}

func postSigned[T any](t *testing.T, h http.Handler, path string, key crypto.PrivateKey, obj *T) *httptest.ResponseRecorder {
	t.Helper()
	signed, err := protocol.NewSigned(key, obj)
	require.NoError(t, err)
	return postJSON(t, h, path, signed)
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func getJSON[T any](t *testing.T, h http.Handler, path string) T {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())

	var resp coprocessor.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.Error)
	if code != "" {
		require.Equal(t, code, resp.Code)
	}
}
