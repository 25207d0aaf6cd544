package rushb

// Fixed public parameters for the toy modular-exponentiation cipher. This
// is a compatibility token between client and server, not a security
// boundary — see spec Non-goals.
const (
	cipherN = 249
	cipherD = 15
	cipherE = 11
)

// modPow computes base^exp mod mod using repeated squaring; exponents here
// are always small (11 or 15) so this never needs to be fast, only correct.
func modPow(base, exp, mod int) int {
	result := 1
	base = base % mod
	for exp > 0 {
		if exp&1 == 1 {
			result = (result * base) % mod
		}
		exp >>= 1
		base = (base * base) % mod
	}
	return result
}

// transformPayload applies the cipher with the given exponent to payload,
// stopping at the first zero byte: a zero byte terminates the transform,
// and everything from that point on is dropped from the result.
func transformPayload(payload []byte, exp int) []byte {
	out := make([]byte, 0, len(payload))
	for _, b := range payload {
		if b == 0 {
			break
		}
		out = append(out, byte(modPow(int(b), exp, cipherN)))
	}
	return out
}

// encryptPayload produces the cipher image of a plaintext payload.
func encryptPayload(payload []byte) []byte {
	return transformPayload(payload, cipherE)
}

// decryptPayload recovers the plaintext from a cipher-imaged payload.
func decryptPayload(payload []byte) []byte {
	return transformPayload(payload, cipherD)
}
