package miniscript

import (
	"strconv"
	"strings"
)

// String renders n back to miniscript text, the inverse of Parse. Round-
// tripping Parse(n.String()) reproduces an AST equal to n.
func (n *Node) String() string {
	if n == nil {
		return ""
	}

	switch n.Kind {
	case KindPk:
		return "pk(" + n.Key + ")"
	case KindPkK:
		return "pk_k(" + n.Key + ")"
	case KindPkH:
		return "pkh(" + n.Key + ")"
	case KindPkHLegacy:
		return "pk_h(" + n.Key + ")"
	case KindMulti:
		return "multi(" + multiArgs(n) + ")"
	case KindMultiA:
		return "multi_a(" + multiArgs(n) + ")"
	case KindSha256:
		return "sha256(" + n.Digest + ")"
	case KindHash256:
		return "hash256(" + n.Digest + ")"
	case KindRipemd160:
		return "ripemd160(" + n.Digest + ")"
	case KindHash160:
		return "hash160(" + n.Digest + ")"
	case KindOlder:
		return "older(" + strconv.FormatInt(n.K, 10) + ")"
	case KindAfter:
		return "after(" + strconv.FormatInt(n.K, 10) + ")"
	case KindAndOr:
		return "andor(" + n.Children[0].String() + "," +
			n.Children[1].String() + "," + n.Children[2].String() + ")"
	case KindAndV:
		return binOp("and_v", n)
	case KindAndB:
		return binOp("and_b", n)
	case KindOrB:
		return binOp("or_b", n)
	case KindOrC:
		return binOp("or_c", n)
	case KindOrD:
		return binOp("or_d", n)
	case KindOrI:
		return binOp("or_i", n)
	case KindThresh:
		parts := make([]string, len(n.Children)+1)
		parts[0] = strconv.FormatInt(n.K, 10)
		for i, c := range n.Children {
			parts[i+1] = c.String()
		}
		return "thresh(" + strings.Join(parts, ",") + ")"
	case KindWrap:
		var prefix strings.Builder
		cur := n
		for cur.Kind == KindWrap {
			prefix.WriteByte(cur.Wrapper)
			cur = cur.Children[0]
		}
		return prefix.String() + ":" + cur.String()
	default:
		return ""
	}
}

func binOp(name string, n *Node) string {
	return name + "(" + n.Children[0].String() + "," +
		n.Children[1].String() + ")"
}

func multiArgs(n *Node) string {
	parts := make([]string, len(n.Keys)+1)
	parts[0] = strconv.FormatInt(n.K, 10)
	copy(parts[1:], n.Keys)
	return strings.Join(parts, ",")
}
