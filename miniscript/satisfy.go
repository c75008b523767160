package miniscript

import (
	"encoding/hex"
	"fmt"

	"github.com/lightninglabs/outputdesc/keyexpr"
)

// TimeConstraints carries a time-lock the satisfier must remain consistent
// with, enabling a two-pass "plan with fake signatures, then sign for
// real" workflow that picks the same branch both times.
type TimeConstraints struct {
	NLockTime *uint32
	NSequence *uint32
}

// Preimage is a single hash-preimage the satisfier may draw on. Digest is
// the full miniscript hash-fragment text (e.g. "sha256(<hex>)"), matched
// textually rather than by raw hash bytes.
type Preimage struct {
	Digest   string
	Preimage string
}

// SatisfactionResult is the satisfier's output: the push-opcode sequence
// that unlocks the script, and any time-lock the chosen branch assumes.
type SatisfactionResult struct {
	Items     [][]byte
	NLockTime *uint32
	NSequence *uint32
}

// branch is an internal satisfaction candidate: the witness items it
// contributes and their approximate weight (bytes pushed, used only to
// compare candidates against each other).
type branch struct {
	items  [][]byte
	weight int
}

func newBranch(items ...[]byte) *branch {
	w := 0
	for _, it := range items {
		w += len(it) + 1
	}
	return &branch{items: items, weight: w}
}

func (b *branch) concat(other *branch) *branch {
	items := append(append([][]byte{}, b.items...), other.items...)
	return &branch{items: items, weight: b.weight + other.weight}
}

func cheaper(a, b *branch) *branch {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.weight < a.weight:
		return b
	default:
		return a
	}
}

// Satisfy implements the miniscript satisfier (spec §4.E): given the
// expanded AST, its key-expansion map, a set of available signatures
// (keyed by @N placeholder), preimages, and optional time constraints, it
// returns the minimum-weight satisfying witness.
func Satisfy(n *Node, km *keyexpr.ExpansionMap, signatures map[string][]byte,
	preimages []Preimage, constraints *TimeConstraints) (*SatisfactionResult, error) {

	ctx := &satisfyCtx{
		km:          km,
		signatures:  signatures,
		preimages:   preimagesByDigest(preimages),
		constraints: constraints,
	}

	sat, _, err := satisfyNode(ctx, n)
	if err != nil {
		return nil, err
	}
	if sat == nil {
		return nil, fmt.Errorf("%w: no satisfying branch found for "+
			"the supplied signatures and preimages",
			keyexpr.ErrSatisfaction)
	}

	result := &SatisfactionResult{Items: sat.items}
	if constraints != nil {
		result.NLockTime = constraints.NLockTime
		result.NSequence = constraints.NSequence
	}
	if lt := ctx.requiredLockTime; lt != nil {
		result.NLockTime = lt
	}
	if seq := ctx.requiredSequence; seq != nil {
		result.NSequence = seq
	}
	return result, nil
}

func preimagesByDigest(preimages []Preimage) map[string][]byte {
	out := make(map[string][]byte, len(preimages))
	for _, p := range preimages {
		b, err := hex.DecodeString(p.Preimage)
		if err != nil {
			continue
		}
		out[p.Digest] = b
	}
	return out
}

type satisfyCtx struct {
	km          *keyexpr.ExpansionMap
	signatures  map[string][]byte
	preimages   map[string][]byte
	constraints *TimeConstraints

	requiredLockTime, requiredSequence *uint32
}

var emptyPush = []byte{}

// satisfyNode returns (satisfying branch, dissatisfying branch, error).
// Either branch may be nil if that mode is unavailable for n; an error is
// only returned for a structural problem (e.g. an unresolvable key).
func satisfyNode(ctx *satisfyCtx, n *Node) (*branch, *branch, error) {
	switch n.Kind {
	case KindPk, KindPkK:
		sig, ok := ctx.signatures[n.Key]
		var sat *branch
		if ok {
			sat = newBranch(sig)
		}
		return sat, newBranch(emptyPush), nil

	case KindPkH, KindPkHLegacy:
		sig, ok := ctx.signatures[n.Key]
		info, infoOK := ctx.km.Get(n.Key)
		var sat *branch
		if ok && infoOK {
			sat = newBranch(sig, info.Pubkey)
		}
		var dissat *branch
		if infoOK {
			dissat = newBranch(emptyPush, info.Pubkey)
		}
		return sat, dissat, nil

	case KindMulti:
		sat, err := multiSatisfy(ctx, n.K, n.Keys)
		if err != nil {
			return nil, nil, err
		}
		dissatItems := make([][]byte, len(n.Keys)+1)
		for i := range dissatItems {
			dissatItems[i] = emptyPush
		}
		return sat, newBranch(dissatItems...), nil

	case KindMultiA:
		sat, err := multiASatisfy(ctx, n.K, n.Keys)
		if err != nil {
			return nil, nil, err
		}
		dissatItems := make([][]byte, len(n.Keys))
		for i := range dissatItems {
			dissatItems[i] = emptyPush
		}
		return sat, newBranch(dissatItems...), nil

	case KindSha256, KindHash256, KindRipemd160, KindHash160:
		pre, ok := ctx.preimages[n.String()]
		var sat *branch
		if ok {
			sat = newBranch(pre)
		}
		return sat, newBranch(make([]byte, 32)), nil

	case KindOlder:
		seq := uint32(n.K)
		if ctx.constraints != nil && ctx.constraints.NSequence != nil &&
			*ctx.constraints.NSequence != seq {
			return nil, nil, nil
		}
		ctx.requiredSequence = &seq
		return newBranch(), nil, nil

	case KindAfter:
		lt := uint32(n.K)
		if ctx.constraints != nil && ctx.constraints.NLockTime != nil &&
			*ctx.constraints.NLockTime != lt {
			return nil, nil, nil
		}
		ctx.requiredLockTime = &lt
		return newBranch(), nil, nil

	case KindAndOr:
		return satisfyAndOr(ctx, n)
	case KindAndV:
		return satisfyAndV(ctx, n)
	case KindAndB:
		return satisfyAndB(ctx, n)
	case KindOrB:
		return satisfyOrB(ctx, n)
	case KindOrC:
		return satisfyOrC(ctx, n)
	case KindOrD:
		return satisfyOrD(ctx, n)
	case KindOrI:
		return satisfyOrI(ctx, n)
	case KindThresh:
		return satisfyThresh(ctx, n)
	case KindWrap:
		return satisfyWrap(ctx, n)
	default:
		return nil, nil, fmt.Errorf("%w: cannot satisfy node kind %d",
			keyexpr.ErrSatisfaction, n.Kind)
	}
}

func multiSatisfy(ctx *satisfyCtx, k int64, keys []string) (*branch, error) {
	items := [][]byte{emptyPush}
	count := int64(0)
	for _, key := range keys {
		if sig, ok := ctx.signatures[key]; ok && count < k {
			items = append(items, sig)
			count++
		}
	}
	if count < k {
		return nil, nil
	}
	return newBranch(items...), nil
}

func multiASatisfy(ctx *satisfyCtx, k int64, keys []string) (*branch, error) {
	items := make([][]byte, len(keys))
	count := int64(0)
	// multi_a's CHECKSIGADD chain consumes the witness stack top-down
	// against the keys in the order they were pushed, so the witness is
	// supplied in reverse key order.
	for i := len(keys) - 1; i >= 0; i-- {
		if sig, ok := ctx.signatures[keys[i]]; ok && count < k {
			items[len(keys)-1-i] = sig
			count++
		} else {
			items[len(keys)-1-i] = emptyPush
		}
	}
	if count < k {
		return nil, nil
	}
	return newBranch(items...), nil
}

func satisfyAndOr(ctx *satisfyCtx, n *Node) (*branch, *branch, error) {
	x, xDis, err := satisfyNode(ctx, n.Children[0])
	if err != nil {
		return nil, nil, err
	}
	y, _, err := satisfyNode(ctx, n.Children[1])
	if err != nil {
		return nil, nil, err
	}
	z, _, err := satisfyNode(ctx, n.Children[2])
	if err != nil {
		return nil, nil, err
	}

	var trueBranch, falseBranch *branch
	if x != nil && y != nil {
		trueBranch = x.concat(y)
	}
	if xDis != nil && z != nil {
		falseBranch = xDis.concat(z)
	}
	return cheaper(trueBranch, falseBranch), nil, nil
}

func satisfyAndV(ctx *satisfyCtx, n *Node) (*branch, *branch, error) {
	x, _, err := satisfyNode(ctx, n.Children[0])
	if err != nil {
		return nil, nil, err
	}
	y, _, err := satisfyNode(ctx, n.Children[1])
	if err != nil {
		return nil, nil, err
	}
	if x == nil || y == nil {
		return nil, nil, nil
	}
	return x.concat(y), nil, nil
}

func satisfyAndB(ctx *satisfyCtx, n *Node) (*branch, *branch, error) {
	x, xDis, err := satisfyNode(ctx, n.Children[0])
	if err != nil {
		return nil, nil, err
	}
	y, yDis, err := satisfyNode(ctx, n.Children[1])
	if err != nil {
		return nil, nil, err
	}
	var sat *branch
	if x != nil && y != nil {
		sat = x.concat(y)
	}
	var dissat *branch
	if xDis != nil && yDis != nil {
		dissat = xDis.concat(yDis)
	}
	return sat, dissat, nil
}

func satisfyOrB(ctx *satisfyCtx, n *Node) (*branch, *branch, error) {
	x, xDis, err := satisfyNode(ctx, n.Children[0])
	if err != nil {
		return nil, nil, err
	}
	z, zDis, err := satisfyNode(ctx, n.Children[1])
	if err != nil {
		return nil, nil, err
	}
	var left, right *branch
	if x != nil && zDis != nil {
		left = x.concat(zDis)
	}
	if xDis != nil && z != nil {
		right = xDis.concat(z)
	}
	var dissat *branch
	if xDis != nil && zDis != nil {
		dissat = xDis.concat(zDis)
	}
	return cheaper(left, right), dissat, nil
}

func satisfyOrC(ctx *satisfyCtx, n *Node) (*branch, *branch, error) {
	x, xDis, err := satisfyNode(ctx, n.Children[0])
	if err != nil {
		return nil, nil, err
	}
	z, _, err := satisfyNode(ctx, n.Children[1])
	if err != nil {
		return nil, nil, err
	}
	var onX, onZ *branch
	if x != nil {
		onX = x
	}
	if xDis != nil && z != nil {
		onZ = xDis.concat(z)
	}
	return cheaper(onX, onZ), nil, nil
}

func satisfyOrD(ctx *satisfyCtx, n *Node) (*branch, *branch, error) {
	x, xDis, err := satisfyNode(ctx, n.Children[0])
	if err != nil {
		return nil, nil, err
	}
	z, zDis, err := satisfyNode(ctx, n.Children[1])
	if err != nil {
		return nil, nil, err
	}
	var onX, onZ *branch
	if x != nil {
		onX = x
	}
	if xDis != nil && z != nil {
		onZ = xDis.concat(z)
	}
	var dissat *branch
	if xDis != nil && zDis != nil {
		dissat = xDis.concat(zDis)
	}
	return cheaper(onX, onZ), dissat, nil
}

func satisfyOrI(ctx *satisfyCtx, n *Node) (*branch, *branch, error) {
	x, xDis, err := satisfyNode(ctx, n.Children[0])
	if err != nil {
		return nil, nil, err
	}
	z, zDis, err := satisfyNode(ctx, n.Children[1])
	if err != nil {
		return nil, nil, err
	}
	var onX, onZ *branch
	if x != nil {
		onX = x.concat(newBranch([]byte{1}))
	}
	if z != nil {
		onZ = z.concat(newBranch(emptyPush))
	}
	var dissat *branch
	if xDis != nil {
		dissat = xDis.concat(newBranch([]byte{1}))
	} else if zDis != nil {
		dissat = zDis.concat(newBranch(emptyPush))
	}
	return cheaper(onX, onZ), dissat, nil
}

func satisfyThresh(ctx *satisfyCtx, n *Node) (*branch, *branch, error) {
	type option struct {
		sat, dissat *branch
	}
	opts := make([]option, len(n.Children))
	for i, c := range n.Children {
		sat, dissat, err := satisfyNode(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		opts[i] = option{sat: sat, dissat: dissat}
	}

	// Greedily choose the k sub-expressions whose (sat cost - dissat
	// cost) is smallest, among those with a sat branch; every other
	// sub-expression must supply a dissat branch.
	type scored struct {
		idx  int
		diff int
	}
	var candidates []scored
	for i, o := range opts {
		if o.sat == nil {
			continue
		}
		diff := o.sat.weight
		if o.dissat != nil {
			diff -= o.dissat.weight
		}
		candidates = append(candidates, scored{idx: i, diff: diff})
	}
	if int64(len(candidates)) < n.K {
		return nil, nil, nil
	}
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].diff < candidates[i].diff {
				candidates[i], candidates[j] =
					candidates[j], candidates[i]
			}
		}
	}
	chosen := make(map[int]bool)
	for _, c := range candidates[:n.K] {
		chosen[c.idx] = true
	}

	items := make([][]byte, 0, len(opts))
	weight := 0
	// Items are appended in the original left-to-right sub-expression
	// order.
	for i := range opts {
		var b *branch
		if chosen[i] {
			b = opts[i].sat
		} else {
			if opts[i].dissat == nil {
				return nil, nil, nil
			}
			b = opts[i].dissat
		}
		items = append(items, b.items...)
		weight += b.weight
	}
	return &branch{items: items, weight: weight}, nil, nil
}

func satisfyWrap(ctx *satisfyCtx, n *Node) (*branch, *branch, error) {
	child := n.Children[0]
	sat, dissat, err := satisfyNode(ctx, child)
	if err != nil {
		return nil, nil, err
	}

	switch n.Wrapper {
	case 'a', 's', 'n':
		return sat, dissat, nil
	case 'c':
		return sat, dissat, nil
	case 'v':
		return sat, nil, nil
	case 'd', 'j':
		var ds *branch
		if dissat != nil {
			ds = dissat.concat(newBranch(emptyPush))
		} else {
			ds = newBranch(emptyPush)
		}
		var s *branch
		if sat != nil {
			s = sat.concat(newBranch([]byte{1}))
		}
		return s, ds, nil
	case 't':
		return sat, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown wrapper %q",
			keyexpr.ErrSatisfaction, string(n.Wrapper))
	}
}
