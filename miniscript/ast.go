// Package miniscript implements the core fragment grammar used inside
// sh/wsh/tr descriptor wrappers: parsing into an AST, expansion of key
// expressions to @N placeholders, compilation to script bytes, and
// minimum-weight satisfaction.
package miniscript

// Kind identifies a miniscript fragment or wrapper.
type Kind int

const (
	KindPk Kind = iota
	KindPkH
	KindPkK
	KindPkHLegacy
	KindMulti
	KindMultiA
	KindSha256
	KindHash256
	KindRipemd160
	KindHash160
	KindOlder
	KindAfter
	KindAndOr
	KindAndV
	KindAndB
	KindOrB
	KindOrC
	KindOrD
	KindOrI
	KindThresh
	KindWrap
	KindKeyPlaceholder
)

// Node is a single miniscript AST node. Only the fields relevant to Kind
// are populated.
type Node struct {
	Kind Kind

	// Key holds the @N placeholder text for KindPk/KindPkH/KindPkK/
	// KindPkHLegacy operands, and KindKeyPlaceholder itself.
	Key string
	// Keys holds the operand list for KindMulti/KindMultiA. thresh's
	// sub-expressions after the first integer argument are in Children.
	Keys []string

	// Children holds sub-expressions for combinators (andor has 3,
	// and_v/and_b/or_b/or_c/or_d/or_i have 2, thresh has N).
	Children []*Node

	// K is the threshold count for KindMulti/KindMultiA/KindThresh, the
	// timelock value for KindOlder/KindAfter.
	K int64

	// Digest is the raw hex text of a hash fragment's operand, used for
	// matching against supplied preimages by text (spec requires
	// matching preimages by digest text, not raw bytes).
	Digest string

	// Wrapper is the single-character wrapper prefix (a, s, c, d, v, j,
	// n, t) for KindWrap, and Children[0] is the wrapped sub-expression.
	Wrapper byte
}
