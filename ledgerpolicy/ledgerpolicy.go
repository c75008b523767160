// Package ledgerpolicy implements spec component J: extracting a Ledger
// hardware wallet registration policy (a template with every key expression
// replaced by a @i/** placeholder, plus the stable-ordered key roots each
// placeholder stands for) directly from descriptor text.
//
// Extraction works on the raw descriptor text rather than a constructed
// Output, since a multipath descriptor's change/receive branches must
// extract to the identical policy and the unresolved `<a;b>`/`/**` syntax
// carries that invariance for free: the key root (origin plus base
// extended key, with any trailing derivation path and wildcard stripped)
// is the same no matter which branch or index was instantiated.
package ledgerpolicy

import (
	"fmt"
	"strings"

	"github.com/lightninglabs/outputdesc/descriptor"
	"github.com/lightninglabs/outputdesc/keyexpr"
)

// Policy is the result of extracting a Ledger registration policy.
type Policy struct {
	// Template is text with every key expression replaced by its @i/**
	// placeholder. sortedmulti/sortedmulti_a call names are preserved
	// verbatim (never expanded into multi/multi_a).
	Template string

	// KeyRoots lists, in placeholder order, the key root (origin plus
	// base extended key) each @i stands for.
	KeyRoots []string
}

type extractor struct {
	roots   []string
	indexOf map[string]int
}

// Extract implements spec §4.J.
func Extract(text string) (*Policy, error) {
	text = strings.TrimSpace(text)
	text = descriptor.ChecksumStrip(text)

	e := &extractor{indexOf: make(map[string]int)}
	template, err := e.walk(text)
	if err != nil {
		return nil, err
	}
	return &Policy{Template: template, KeyRoots: e.roots}, nil
}

// opaqueArgNames are call names whose argument text is never a key
// expression and so is carried through unchanged: hash digests, timelock
// integers, addresses, and raw scripts.
var opaqueArgNames = map[string]bool{
	"addr": true, "raw": true,
	"sha256": true, "hash256": true, "ripemd160": true, "hash160": true,
	"older": true, "after": true,
}

func (e *extractor) walk(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty expression", keyexpr.ErrParse)
	}
	if strings.HasPrefix(text, "{") {
		return e.walkTree(text)
	}

	prefix, rest := splitWrapperPrefix(text)
	if !strings.ContainsRune(rest, '(') {
		if prefix != "" {
			return "", fmt.Errorf("%w: wrapper prefix %q is not "+
				"followed by a call", keyexpr.ErrParse, text)
		}
		return e.walkLeaf(text)
	}

	name, args, err := splitCall(rest)
	if err != nil {
		return "", err
	}

	var inner string
	switch {
	case name == "sortedmulti" || name == "sortedmulti_a" ||
		name == "multi" || name == "multi_a":
		inner, err = e.walkMultiLike(args)
	case name == "thresh":
		inner, err = e.walkThresh(args)
	case name == "tr":
		inner, err = e.walkChildren(args)
	case opaqueArgNames[name]:
		inner = args
	default:
		inner, err = e.walkChildren(args)
	}
	if err != nil {
		return "", err
	}
	return prefix + name + "(" + inner + ")", nil
}

// walkMultiLike handles multi/multi_a/sortedmulti/sortedmulti_a: the first
// argument is a threshold count carried through unchanged, every other
// argument is a key expression.
func (e *extractor) walkMultiLike(args string) (string, error) {
	parts := splitTopLevel(args)
	if len(parts) < 2 {
		return "", fmt.Errorf("%w: multi-style call needs a threshold "+
			"and at least one key", keyexpr.ErrParse)
	}
	out := make([]string, len(parts))
	out[0] = strings.TrimSpace(parts[0])
	for i := 1; i < len(parts); i++ {
		placeholder, err := e.walkLeaf(parts[i])
		if err != nil {
			return "", err
		}
		out[i] = placeholder
	}
	return strings.Join(out, ","), nil
}

// walkThresh handles thresh(K,X1,...,Xn): the first argument is the
// threshold count, every other argument is a full sub-expression.
func (e *extractor) walkThresh(args string) (string, error) {
	parts := splitTopLevel(args)
	if len(parts) < 2 {
		return "", fmt.Errorf("%w: thresh needs a threshold and at "+
			"least one sub-expression", keyexpr.ErrParse)
	}
	out := make([]string, len(parts))
	out[0] = strings.TrimSpace(parts[0])
	for i := 1; i < len(parts); i++ {
		sub, err := e.walk(parts[i])
		if err != nil {
			return "", err
		}
		out[i] = sub
	}
	return strings.Join(out, ","), nil
}

// walkChildren handles every wrapper whose arguments are all full
// sub-expressions: pk/pkh/pk_k/pk_h/wpkh/sh/wsh/combo (1 child),
// and_v/and_b/or_b/or_c/or_d/or_i (2), andor (3), tr (1 or 2, the second
// being a tap tree).
func (e *extractor) walkChildren(args string) (string, error) {
	parts := splitTopLevel(args)
	out := make([]string, len(parts))
	for i, part := range parts {
		sub, err := e.walk(part)
		if err != nil {
			return "", err
		}
		out[i] = sub
	}
	return strings.Join(out, ","), nil
}

// walkTree handles a tap-tree node: a single leaf (a miniscript
// sub-expression, handled by walk) or a "{left,right}" branch.
func (e *extractor) walkTree(text string) (string, error) {
	if !strings.HasPrefix(text, "{") || !strings.HasSuffix(text, "}") {
		return "", fmt.Errorf("%w: malformed tap tree %q",
			keyexpr.ErrParse, text)
	}
	body := text[1 : len(text)-1]
	parts := splitTopLevel(body)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: tap tree branch must have exactly "+
			"2 parts, got %d in %q", keyexpr.ErrParse, len(parts), text)
	}
	left, err := e.walk(strings.TrimSpace(parts[0]))
	if err != nil {
		return "", err
	}
	right, err := e.walk(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", err
	}
	return "{" + left + "," + right + "}", nil
}

// walkLeaf assigns (or reuses) a @i/** placeholder for a key expression,
// keyed by its root rather than its full text, so the same underlying key
// used at two different multipath-instantiated paths still shares a
// placeholder and both instantiations extract to the identical policy.
func (e *extractor) walkLeaf(keyExpr string) (string, error) {
	keyExpr = strings.TrimSpace(keyExpr)
	if keyExpr == "" {
		return "", fmt.Errorf("%w: empty key expression", keyexpr.ErrParse)
	}

	root := keyRoot(keyExpr)
	idx, ok := e.indexOf[root]
	if !ok {
		idx = len(e.roots)
		e.indexOf[root] = idx
		e.roots = append(e.roots, root)
	}
	return fmt.Sprintf("@%d/**", idx), nil
}

// keyRoot strips a key expression down to its origin plus base extended
// key/pubkey/WIF, discarding any trailing derivation path and wildcard.
func keyRoot(keyExpr string) string {
	origin := ""
	rest := keyExpr
	if strings.HasPrefix(rest, "[") {
		if end := strings.IndexByte(rest, ']'); end >= 0 {
			origin = rest[:end+1]
			rest = rest[end+1:]
		}
	}
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		rest = rest[:slash]
	}
	return origin + rest
}

// splitWrapperPrefix peels off a leading miniscript wrapper prefix (one or
// more of a,s,c,d,v,j,n,t followed by ':'), returning it (with the colon)
// separately from the rest of the text.
func splitWrapperPrefix(text string) (prefix, rest string) {
	colon := strings.IndexByte(text, ':')
	if colon < 0 {
		return "", text
	}
	paren := strings.IndexByte(text, '(')
	if paren >= 0 && colon > paren {
		return "", text
	}
	candidate := text[:colon]
	for _, r := range candidate {
		if !strings.ContainsRune("ascdvjnt", r) {
			return "", text
		}
	}
	return candidate + ":", text[colon+1:]
}

// splitCall splits text as name(args), the balanced-parentheses way
// descriptor.splitFuncCall does.
func splitCall(text string) (name, args string, err error) {
	idx := strings.IndexByte(text, '(')
	if idx < 0 {
		return "", "", fmt.Errorf("%w: %q is not a function call",
			keyexpr.ErrParse, text)
	}
	if !strings.HasSuffix(text, ")") {
		return "", "", fmt.Errorf("%w: unbalanced parentheses in %q",
			keyexpr.ErrParse, text)
	}

	depth := 0
	for i, r := range text {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return "", "", fmt.Errorf("%w: unbalanced "+
					"parentheses in %q", keyexpr.ErrParse, text)
			}
			if depth == 0 && i != len(text)-1 {
				return "", "", fmt.Errorf("%w: trailing "+
					"characters after call in %q",
					keyexpr.ErrParse, text)
			}
		}
	}
	if depth != 0 {
		return "", "", fmt.Errorf("%w: unbalanced parentheses in %q",
			keyexpr.ErrParse, text)
	}
	return text[:idx], text[idx+1 : len(text)-1], nil
}

// splitTopLevel splits body on commas at paren/brace depth 0, so a tap
// tree's "{...}" or a nested call's "(...)" is never split internally.
func splitTopLevel(body string) []string {
	if body == "" {
		return nil
	}
	var parts []string
	depth := 0
	last := 0
	for i, r := range body {
		switch r {
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, body[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, body[last:])
	return parts
}
