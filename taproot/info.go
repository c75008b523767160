package taproot

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/outputdesc/keyexpr"
	"github.com/lightninglabs/outputdesc/miniscript"
)

// BaseLeafVersion is the only defined tapscript leaf version (BIP342).
const BaseLeafVersion = 0xc0

// Leaf is one expanded, compiled tapscript leaf: its miniscript AST, script
// bytes, expansion map (so a satisfier can later resolve its placeholders),
// and its depth in the tree (used for control-block sizing).
type Leaf struct {
	Node   *miniscript.Node
	Script []byte
	Keys   *keyexpr.ExpansionMap
	Depth  int

	// LeafHash is this leaf's BIP341 TapLeaf tagged hash.
	LeafHash [32]byte

	// path holds, from this leaf up to the root, the sibling hash at
	// every level a control block for this leaf must carry.
	path [][32]byte
}

// Info is a fully built taproot tree: every leaf expanded and compiled, plus
// the merkle structure needed to produce a control block for any of them.
type Info struct {
	Tree   *TreeNode
	Leaves []*Leaf

	// MerkleRoot is the tagged hash at the root of the tree, or the zero
	// value if the tree is empty (key-path-only spend).
	MerkleRoot [32]byte
	hasTree    bool
}

// BuildInfo implements spec components F-G: parses text per ParseTree, then
// expands (x-only pubkeys) and compiles (tapscript encodings) every leaf,
// and computes each leaf's TapLeaf hash and the path of sibling hashes
// needed for its control block. text may be empty, meaning key-path-only.
func BuildInfo(text string, network *chaincfg.Params, index *uint32) (*Info, error) {
	if text == "" {
		return &Info{}, nil
	}

	tree, err := ParseTree(text)
	if err != nil {
		return nil, err
	}

	info := &Info{Tree: tree, hasTree: true}
	if err := compileLeaves(tree, network, index, 0, info); err != nil {
		return nil, err
	}

	root, err := hashSubtree(tree, info)
	if err != nil {
		return nil, err
	}
	info.MerkleRoot = root

	if err := collectPaths(tree, info, nil); err != nil {
		return nil, err
	}
	return info, nil
}

// compileLeaves walks t, expanding and compiling every leaf it finds and
// appending the result to info.Leaves with its depth. Hashing and sibling
// path collection happen in separate passes (hashSubtree, collectPaths)
// since a leaf's control block needs sibling hashes that are only known once both sides of every
// ancestor branch have been hashed.
func compileLeaves(t *TreeNode, network *chaincfg.Params, index *uint32,
	depth int, info *Info) error {

	if t.IsLeaf() {
		node, err := miniscript.Parse(t.Leaf)
		if err != nil {
			return err
		}
		expanded, err := miniscript.Expand(t.Leaf, network, index, true)
		if err != nil {
			return err
		}
		expandedNode, err := miniscript.Parse(expanded.Expanded)
		if err != nil {
			return err
		}
		compiled, err := miniscript.Compile(expandedNode, expanded.Keys, true)
		if err != nil {
			return err
		}
		if !compiled.Sane {
			return fmt.Errorf("%w: tapscript leaf %q is not a sane "+
				"top-level script", keyexpr.ErrPolicy, t.Leaf)
		}

		info.Leaves = append(info.Leaves, &Leaf{
			Node:     node,
			Script:   compiled.Script,
			Keys:     expanded.Keys,
			Depth:    depth,
			LeafHash: tapLeafHash(BaseLeafVersion, compiled.Script),
		})
		return nil
	}

	if depth+1 > MaxTapTreeDepth {
		return fmt.Errorf("%w: taproot tree depth is too large",
			keyexpr.ErrResourceLimit)
	}
	if err := compileLeaves(t.Left, network, index, depth+1, info); err != nil {
		return err
	}
	return compileLeaves(t.Right, network, index, depth+1, info)
}

// hashSubtree returns t's tagged hash: the TapLeaf hash of its compiled
// script if t is a leaf, or the TapBranch hash of its children otherwise.
// Leaves must already be compiled (via compileLeaves) and present in
// info.Leaves in tree walk order.
func hashSubtree(t *TreeNode, info *Info) ([32]byte, error) {
	if t.IsLeaf() {
		leaf, ok := findLeaf(info, t.Leaf)
		if !ok {
			return [32]byte{}, fmt.Errorf("%w: internal error: leaf "+
				"%q not compiled", keyexpr.ErrParse, t.Leaf)
		}
		return leaf.LeafHash, nil
	}
	left, err := hashSubtree(t.Left, info)
	if err != nil {
		return [32]byte{}, err
	}
	right, err := hashSubtree(t.Right, info)
	if err != nil {
		return [32]byte{}, err
	}
	return tapBranchHash(left, right), nil
}

func findLeaf(info *Info, text string) (*Leaf, bool) {
	node, err := miniscript.Parse(text)
	if err != nil {
		return nil, false
	}
	key := node.String()
	for _, leaf := range info.Leaves {
		if leaf.Node.String() == key && leaf.LeafHash != ([32]byte{}) {
			return leaf, true
		}
	}
	return nil, false
}

// collectPaths walks t a second time, now that every subtree's hash is
// known. path holds the sibling hashes collected so far from the root down:
// each recursive call appends the opposite child's hash, and a leaf stores
// its copy reversed, from the leaf up to the root.
func collectPaths(t *TreeNode, info *Info, path [][32]byte) error {
	if t.IsLeaf() {
		node, err := miniscript.Parse(t.Leaf)
		if err != nil {
			return err
		}
		// info.Leaves is in this same left-to-right walk order, so the
		// first matching leaf without a path is the one at this position,
		// even when two leaves have identical text.
		for _, leaf := range info.Leaves {
			if leaf.path == nil && leaf.Node.String() == node.String() {
				leaf.path = make([][32]byte, len(path))
				for i, h := range path {
					leaf.path[len(path)-1-i] = h
				}
				return nil
			}
		}
		return fmt.Errorf("%w: internal error: leaf %q not "+
			"compiled", keyexpr.ErrParse, t.Leaf)
	}

	rightHash, err := hashSubtree(t.Right, info)
	if err != nil {
		return err
	}
	leftHash, err := hashSubtree(t.Left, info)
	if err != nil {
		return err
	}

	if err := collectPaths(t.Left, info, append(path, rightHash)); err != nil {
		return err
	}
	return collectPaths(t.Right, info, append(path, leftHash))
}

// ControlBlockPath returns, from leaf to root, the sibling hashes a control
// block for leaf must carry.
func (l *Leaf) ControlBlockPath() [][32]byte {
	out := make([][32]byte, len(l.path))
	copy(out, l.path)
	return out
}

// LeavesSortedByScript returns a copy of info.Leaves sorted by script bytes,
// a stable, content-addressed ordering. No other package of this module
// calls it; ledgerpolicy works on the descriptor text instead.
func (info *Info) LeavesSortedByScript() []*Leaf {
	out := make([]*Leaf, len(info.Leaves))
	copy(out, info.Leaves)
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Script) < string(out[j].Script)
	})
	return out
}
