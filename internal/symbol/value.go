package symbol

// UpdateValue returns the bytes to announce when replacing old with next.
// Nodes XOR the announced value into the stored one, so the overlap is XORed
// and the tail comes from whichever side is longer. UpdateValue(old, nil)
// yields old itself, which together with a delta of -len(old) clears the entry.
func UpdateValue(old, next []byte) []byte {
	short, long := old, next
	if len(short) > len(long) {
		short, long = long, short
	}

	out := make([]byte, len(long))
	copy(out, long)
	for i := range short {
		out[i] = old[i] ^ next[i]
	}
	return out
}

// SizeDelta returns the value_size_delta for replacing a value of oldSize
// bytes with one of newSize bytes.
func SizeDelta(oldSize, newSize int) int16 {
	return int16(newSize - oldSize)
}
