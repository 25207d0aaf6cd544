package rushb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	for b := 1; b < cipherN; b++ {
		enc := modPow(b, cipherE, cipherN)
		dec := modPow(enc, cipherD, cipherN)
		require.Equalf(t, b, dec, "round trip failed for byte %d", b)
	}
}

func TestTransformPayloadStopsAtZeroByte(t *testing.T) {
	payload := []byte{0x41, 0x42, 0x00, 0x43}
	got := transformPayload(payload, cipherE)
	require.Len(t, got, 2, "transform must stop at the first zero byte")
}

func TestEncryptDecryptPayloadRoundTrip(t *testing.T) {
	plain := []byte("A")
	enc := encryptPayload(plain)
	dec := decryptPayload(enc)
	require.Equal(t, plain, dec)
}

func TestEncryptEmptyPayload(t *testing.T) {
	require.Empty(t, encryptPayload(nil))
	require.Empty(t, decryptPayload([]byte{0x00, 0x01, 0x02}))
}
