package permission

// Mask64 is a 64-bit permission bitmask.
type Mask64 uint64

// Has reports whether the bit is set.
func (m Mask64) Has(bit int) bool {
	if bit < 0 || bit >= 64 {
		return false
	}
	return m&(1<<bit) != 0
}

// Set returns the mask with the bit set.
func (m Mask64) Set(bit int) Mask64 {
	if bit < 0 || bit >= 64 {
		return m
	}
	return m | (1 << bit)
}

// Clear returns the mask with the bit cleared.
func (m Mask64) Clear(bit int) Mask64 {
	if bit < 0 || bit >= 64 {
		return m
	}
	return m &^ (1 << bit)
}

// Raw returns the underlying uint64.
func (m Mask64) Raw() uint64 {
	return uint64(m)
}
