package rushb

// checksumWindowSize is the width, in bytes, of each little-endian word
// folded into the running sum.
const checksumWindowSize = 2

// stripTrailingZeros drops trailing zero bytes, matching the wire
// convention that payloads shorter than MaxPayloadSize are zero-padded.
func stripTrailingZeros(payload []byte) []byte {
	end := len(payload)
	for end > 0 && payload[end-1] == 0 {
		end--
	}
	return payload[:end]
}

// computeChecksum implements the end-around-carry checksum over payload:
// trailing zero bytes are stripped, the remainder is partitioned into
// 2-byte little-endian windows (the last zero-padded if the stripped
// length is odd), and each window is folded into a 32-bit accumulator with
// carry wrapped back into the low 16 bits. The result is the bitwise
// complement of the low 16 bits of the final accumulator.
func computeChecksum(payload []byte) uint16 {
	stripped := stripTrailingZeros(payload)

	var acc uint32
	for i := 0; i < len(stripped); i += checksumWindowSize {
		var lo, hi byte
		lo = stripped[i]
		if i+1 < len(stripped) {
			hi = stripped[i+1]
		}
		word := uint32(lo) | uint32(hi)<<8

		acc += word
		acc = (acc & 0xFFFF) + (acc >> 16)
	}

	return uint16(^acc & 0xFFFF)
}

// isValidChecksum reports whether p's carried checksum matches the value
// recomputed from its current payload.
func (p *Packet) isValidChecksum() bool {
	return p.Checksum == computeChecksum(p.Payload)
}
