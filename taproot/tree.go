// Package taproot parses the {left,right} taproot tree grammar, builds
// per-leaf tapscript/expansion info, and assembles BIP341 witnesses:
// merkle root computation, key tweaking, leaf selection, and control-block
// construction.
package taproot

import (
	"fmt"
	"strings"

	"github.com/lightninglabs/outputdesc/keyexpr"
)

// MaxTapTreeDepth mirrors descriptor.MaxTapTreeDepth; duplicated here (a
// small integer constant, not worth an import) to keep this package
// independent of the descriptor package, which itself will depend on
// taproot.
const MaxTapTreeDepth = 128

// TreeNode is a parsed (but not yet expanded/compiled) taproot tree node:
// either a miniscript leaf (Left/Right nil) or an internal {Left,Right}
// branch (Leaf empty).
type TreeNode struct {
	Leaf        string
	Left, Right *TreeNode
}

// IsLeaf reports whether n is a leaf node.
func (n *TreeNode) IsLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// ParseTree implements spec §4.F: a node is either miniscript leaf text (no
// unbalanced {} or ()) or {left,right}.
func ParseTree(text string) (*TreeNode, error) {
	text = strings.TrimSpace(text)
	node, depth, err := parseTreeNode(text, 0)
	if err != nil {
		return nil, err
	}
	_ = depth
	return node, nil
}

func parseTreeNode(text string, depth int) (*TreeNode, int, error) {
	if text == "" {
		return nil, 0, fmt.Errorf("%w: empty tap-tree expression",
			keyexpr.ErrParse)
	}
	if depth > MaxTapTreeDepth {
		return nil, 0, fmt.Errorf("%w: taproot tree depth is too "+
			"large", keyexpr.ErrResourceLimit)
	}

	if text[0] != '{' {
		if strings.ContainsAny(text, "{}") {
			return nil, 0, fmt.Errorf("%w: unbalanced braces in "+
				"tap-tree leaf %q", keyexpr.ErrParse, text)
		}
		if err := checkBalancedParens(text); err != nil {
			return nil, 0, err
		}
		return &TreeNode{Leaf: text}, depth, nil
	}

	if !strings.HasSuffix(text, "}") {
		return nil, 0, fmt.Errorf("%w: unbalanced braces in tap-tree "+
			"expression %q", keyexpr.ErrParse, text)
	}
	body := text[1 : len(text)-1]

	commaIdx, err := findTopLevelComma(body)
	if err != nil {
		return nil, 0, err
	}

	leftText := strings.TrimSpace(body[:commaIdx])
	rightText := strings.TrimSpace(body[commaIdx+1:])
	if leftText == "" || rightText == "" {
		return nil, 0, fmt.Errorf("%w: empty side in tap-tree "+
			"expression %q", keyexpr.ErrParse, text)
	}

	left, leftDepth, err := parseTreeNode(leftText, depth+1)
	if err != nil {
		return nil, 0, err
	}
	right, rightDepth, err := parseTreeNode(rightText, depth+1)
	if err != nil {
		return nil, 0, err
	}

	maxDepth := leftDepth
	if rightDepth > maxDepth {
		maxDepth = rightDepth
	}
	return &TreeNode{Left: left, Right: right}, maxDepth, nil
}

// findTopLevelComma scans body tracking brace-depth and paren-depth
// simultaneously, returning the index of the sole top-level comma that
// separates the two children.
func findTopLevelComma(body string) (int, error) {
	braceDepth, parenDepth := 0, 0
	commaIdx := -1
	for i, r := range body {
		switch r {
		case '{':
			braceDepth++
		case '}':
			braceDepth--
			if braceDepth < 0 {
				return 0, fmt.Errorf("%w: unbalanced braces in "+
					"tap-tree expression", keyexpr.ErrParse)
			}
		case '(':
			parenDepth++
		case ')':
			parenDepth--
			if parenDepth < 0 {
				return 0, fmt.Errorf("%w: unbalanced "+
					"parentheses in tap-tree expression",
					keyexpr.ErrParse)
			}
		case ',':
			if braceDepth == 0 && parenDepth == 0 {
				if commaIdx >= 0 {
					return 0, fmt.Errorf("%w: extra "+
						"top-level comma in tap-tree "+
						"expression", keyexpr.ErrParse)
				}
				commaIdx = i
			}
		}
	}
	if braceDepth != 0 {
		return 0, fmt.Errorf("%w: unbalanced braces in tap-tree "+
			"expression", keyexpr.ErrParse)
	}
	if parenDepth != 0 {
		return 0, fmt.Errorf("%w: unbalanced parentheses in tap-tree "+
			"expression", keyexpr.ErrParse)
	}
	if commaIdx < 0 {
		return 0, fmt.Errorf("%w: missing top-level comma in "+
			"tap-tree expression", keyexpr.ErrParse)
	}
	return commaIdx, nil
}

func checkBalancedParens(text string) error {
	depth := 0
	for _, r := range text {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unbalanced parentheses "+
					"in tap-tree leaf %q", keyexpr.ErrParse,
					text)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: unbalanced parentheses in tap-tree "+
			"leaf %q", keyexpr.ErrParse, text)
	}
	return nil
}
