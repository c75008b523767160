package miniscript

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse builds an AST from already-expanded miniscript text (key
// expressions already replaced by @N placeholders per the expander).
func Parse(text string) (*Node, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty miniscript expression")
	}
	return parseExpr(text)
}

// splitTopLevelArgs splits body (the text between an outer pair of
// parentheses, already stripped) on commas at paren-depth 0.
func splitTopLevelArgs(body string) []string {
	if body == "" {
		return nil
	}
	var args []string
	depth := 0
	last := 0
	for i, r := range body {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, body[last:i])
				last = i + 1
			}
		}
	}
	args = append(args, body[last:])
	return args
}

// colonWrapperPrefix returns the wrapper-letter run before the first
// top-level ':' that precedes the first '(', or "" if text has no
// wrapper prefix.
func colonWrapperPrefix(text string) (string, string) {
	parenIdx := strings.IndexByte(text, '(')
	colonIdx := strings.IndexByte(text, ':')
	if colonIdx < 0 {
		return "", text
	}
	if parenIdx >= 0 && colonIdx > parenIdx {
		return "", text
	}
	return text[:colonIdx], text[colonIdx+1:]
}

var wrapperLetters = "asndvjct"

func parseExpr(text string) (*Node, error) {
	if wrappers, rest := colonWrapperPrefix(text); wrappers != "" {
		for _, c := range wrappers {
			if !strings.ContainsRune(wrapperLetters, c) {
				return nil, fmt.Errorf("miniscript: unknown "+
					"wrapper %q in %q", string(c), text)
			}
		}
		inner, err := parseExpr(rest)
		if err != nil {
			return nil, err
		}
		// Rightmost wrapper letter is innermost: wrap in reverse.
		node := inner
		for i := len(wrappers) - 1; i >= 0; i-- {
			node = &Node{
				Kind:     KindWrap,
				Wrapper:  wrappers[i],
				Children: []*Node{node},
			}
		}
		return node, nil
	}

	openIdx := strings.IndexByte(text, '(')
	if openIdx < 0 {
		return nil, fmt.Errorf("miniscript: expected fragment call in "+
			"%q", text)
	}
	if !strings.HasSuffix(text, ")") {
		return nil, fmt.Errorf("miniscript: unterminated fragment in "+
			"%q", text)
	}
	name := text[:openIdx]
	body := text[openIdx+1 : len(text)-1]
	args := splitTopLevelArgs(body)

	switch name {
	case "pk":
		return simpleKeyFragment(KindPk, args, text)
	case "pk_k":
		return simpleKeyFragment(KindPkK, args, text)
	case "pkh":
		return simpleKeyFragment(KindPkH, args, text)
	case "pk_h":
		return simpleKeyFragment(KindPkHLegacy, args, text)

	case "multi", "multi_a":
		if len(args) < 2 {
			return nil, fmt.Errorf("miniscript: %s needs a "+
				"threshold and at least one key in %q",
				name, text)
		}
		k, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("miniscript: invalid "+
				"threshold in %q: %v", text, err)
		}
		keys := make([]string, len(args)-1)
		for i, a := range args[1:] {
			keys[i] = strings.TrimSpace(a)
		}
		kind := KindMulti
		if name == "multi_a" {
			kind = KindMultiA
		}
		return &Node{Kind: kind, K: k, Keys: keys}, nil

	case "sha256", "hash256", "ripemd160", "hash160":
		if len(args) != 1 {
			return nil, fmt.Errorf("miniscript: %s needs one "+
				"argument in %q", name, text)
		}
		kind := map[string]Kind{
			"sha256": KindSha256, "hash256": KindHash256,
			"ripemd160": KindRipemd160, "hash160": KindHash160,
		}[name]
		return &Node{Kind: kind, Digest: strings.TrimSpace(args[0])},
			nil

	case "older", "after":
		if len(args) != 1 {
			return nil, fmt.Errorf("miniscript: %s needs one "+
				"argument in %q", name, text)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("miniscript: invalid locktime "+
				"in %q: %v", text, err)
		}
		kind := KindOlder
		if name == "after" {
			kind = KindAfter
		}
		return &Node{Kind: kind, K: n}, nil

	case "andor":
		return nAryFragment(KindAndOr, 3, args, text)
	case "and_v":
		return nAryFragment(KindAndV, 2, args, text)
	case "and_b":
		return nAryFragment(KindAndB, 2, args, text)
	case "or_b":
		return nAryFragment(KindOrB, 2, args, text)
	case "or_c":
		return nAryFragment(KindOrC, 2, args, text)
	case "or_d":
		return nAryFragment(KindOrD, 2, args, text)
	case "or_i":
		return nAryFragment(KindOrI, 2, args, text)

	case "thresh":
		if len(args) < 2 {
			return nil, fmt.Errorf("miniscript: thresh needs a "+
				"threshold and at least one sub-expression "+
				"in %q", text)
		}
		k, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("miniscript: invalid "+
				"threshold in %q: %v", text, err)
		}
		children := make([]*Node, len(args)-1)
		for i, a := range args[1:] {
			child, err := parseExpr(strings.TrimSpace(a))
			if err != nil {
				return nil, err
			}
			children[i] = child
		}
		return &Node{Kind: KindThresh, K: k, Children: children}, nil

	default:
		return nil, fmt.Errorf("miniscript: unknown fragment %q in "+
			"%q", name, text)
	}
}

func simpleKeyFragment(kind Kind, args []string, text string) (*Node, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("miniscript: key fragment needs one "+
			"argument in %q", text)
	}
	return &Node{Kind: kind, Key: strings.TrimSpace(args[0])}, nil
}

func nAryFragment(kind Kind, n int, args []string, text string) (*Node, error) {
	if len(args) != n {
		return nil, fmt.Errorf("miniscript: expected %d arguments in "+
			"%q, got %d", n, text, len(args))
	}
	children := make([]*Node, n)
	for i, a := range args {
		child, err := parseExpr(strings.TrimSpace(a))
		if err != nil {
			return nil, err
		}
		children[i] = child
	}
	return &Node{Kind: kind, Children: children}, nil
}
