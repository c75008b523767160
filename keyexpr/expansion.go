package keyexpr

import "strconv"

// ExpansionMap is an insertion-ordered mapping from @N placeholder tokens
// to the KeyInfo each one resolves to. Indices are assigned in textual
// order of first occurrence; two occurrences of the same key-expression
// text share one placeholder.
type ExpansionMap struct {
	order []string
	byKey map[string]string
	info  map[string]*KeyInfo
}

// NewExpansionMap returns an empty ExpansionMap.
func NewExpansionMap() *ExpansionMap {
	return &ExpansionMap{
		byKey: make(map[string]string),
		info:  make(map[string]*KeyInfo),
	}
}

// Lookup returns the placeholder already assigned to keyExpr, if any.
func (m *ExpansionMap) Lookup(keyExpr string) (string, bool) {
	p, ok := m.byKey[keyExpr]
	return p, ok
}

// Add assigns a fresh @N placeholder to keyExpr/info and returns it. The
// caller must have already verified via Lookup that keyExpr is new.
func (m *ExpansionMap) Add(keyExpr string, info *KeyInfo) string {
	placeholder := placeholderFor(len(m.order))
	m.order = append(m.order, placeholder)
	m.byKey[keyExpr] = placeholder
	m.info[placeholder] = info
	return placeholder
}

// Get returns the KeyInfo for a previously assigned placeholder.
func (m *ExpansionMap) Get(placeholder string) (*KeyInfo, bool) {
	info, ok := m.info[placeholder]
	return info, ok
}

// Placeholders returns every assigned placeholder in assignment order.
func (m *ExpansionMap) Placeholders() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Len returns the number of distinct key expressions recorded so far.
func (m *ExpansionMap) Len() int {
	return len(m.order)
}

func placeholderFor(n int) string {
	return "@" + strconv.Itoa(n)
}
