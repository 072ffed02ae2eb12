package http

// Header is an ordered collection of name/value pairs. Names compare
// case-insensitively but keep their original spelling for echo, and
// duplicates are preserved in arrival order.
type Header struct {
	entries []headerEntry
}

type headerEntry struct {
	name  string
	value string
}

// Add appends a value, preserving arrival order.
func (h *Header) Add(name, value string) {
	h.entries = append(h.entries, headerEntry{name: name, value: value})
}

// Set replaces every value of name with a single one.
func (h *Header) Set(name, value string) {
	h.Del(name)
	h.Add(name, value)
}

// Del removes all values of name.
func (h *Header) Del(name string) {
	out := h.entries[:0]
	for _, e := range h.entries {
		if !equalFold(e.name, name) {
			out = append(out, e)
		}
	}
	h.entries = out
}

// Get returns the first value of name, or "" if absent.
func (h *Header) Get(name string) string {
	for _, e := range h.entries {
		if equalFold(e.name, name) {
			return e.value
		}
	}
	return ""
}

// Has reports whether at least one value of name is present.
func (h *Header) Has(name string) bool {
	for _, e := range h.entries {
		if equalFold(e.name, name) {
			return true
		}
	}
	return false
}

// Values returns every value of name in arrival order.
func (h *Header) Values(name string) []string {
	var vals []string
	for _, e := range h.entries {
		if equalFold(e.name, name) {
			vals = append(vals, e.value)
		}
	}
	return vals
}

// Len returns the number of stored entries, duplicates included.
func (h *Header) Len() int {
	return len(h.entries)
}

// Each calls fn for every entry in arrival order.
func (h *Header) Each(fn func(name, value string)) {
	for _, e := range h.entries {
		fn(e.name, e.value)
	}
}

// equalFold is a byte-wise ASCII case-insensitive comparison. Header
// names are token-restricted so full Unicode folding is unnecessary.
func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if lowerByte(a[i]) != lowerByte(b[i]) {
			return false
		}
	}
	return true
}

func lowerByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
