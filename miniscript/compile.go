package miniscript

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightninglabs/outputdesc/keyexpr"
)

// CompileResult is the output of Compile: the script bytes, and whether the
// expression is "sane" (safe to use as a top-level script per the policy
// rules §7 PolicyError covers).
type CompileResult struct {
	Script []byte
	Sane   bool
}

// Compile turns an expanded miniscript AST (key fragments already resolved
// to KeyInfo via an ExpansionMap) into script bytes. tapscript selects
// whether key pushes use x-only (32-byte) or compressed (33-byte)
// encoding and whether multi compiles to OP_CHECKMULTISIG (false) or
// multi_a compiles via OP_CHECKSIGADD (true, tapscript only).
func Compile(n *Node, km *keyexpr.ExpansionMap, tapscript bool) (*CompileResult, error) {
	builder := txscript.NewScriptBuilder()
	if err := compileNode(builder, n, km, tapscript); err != nil {
		return nil, err
	}
	script, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("miniscript: failed to assemble "+
			"script: %w", err)
	}
	return &CompileResult{Script: script, Sane: isSane(n, tapscript)}, nil
}

// isSane enforces the minimal top-level policy check spec §7 PolicyError
// names: a bare K-type key/hash fragment is never valid as the whole
// top-level script (it leaves a pubkey or pubkey-hash on the stack, never
// a boolean), and multi_a may only appear inside a tapscript leaf.
func isSane(n *Node, tapscript bool) bool {
	switch n.Kind {
	case KindPkK, KindPkHLegacy:
		return false
	case KindMultiA:
		return tapscript
	case KindMulti:
		return !tapscript
	default:
		return true
	}
}

func pubkeyBytes(km *keyexpr.ExpansionMap, placeholder string,
	tapscript bool) ([]byte, error) {

	info, ok := km.Get(placeholder)
	if !ok {
		return nil, fmt.Errorf("%w: unresolved key placeholder %q",
			keyexpr.ErrParse, placeholder)
	}
	pub := info.Pubkey
	if tapscript && len(pub) == 33 {
		pub = pub[1:]
	}
	return pub, nil
}

func hash160(km *keyexpr.ExpansionMap, placeholder string) ([]byte, error) {
	pub, err := pubkeyBytes(km, placeholder, false)
	if err != nil {
		return nil, err
	}
	return btcutil.Hash160(pub), nil
}

func digestBytes(hexDigest string) ([]byte, error) {
	b, err := hex.DecodeString(hexDigest)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hash digest %q: %v",
			keyexpr.ErrParse, hexDigest, err)
	}
	return b, nil
}

func compileNode(b *txscript.ScriptBuilder, n *Node, km *keyexpr.ExpansionMap,
	tapscript bool) error {

	switch n.Kind {
	case KindPk:
		pub, err := pubkeyBytes(km, n.Key, tapscript)
		if err != nil {
			return err
		}
		b.AddData(pub).AddOp(txscript.OP_CHECKSIG)

	case KindPkK:
		pub, err := pubkeyBytes(km, n.Key, tapscript)
		if err != nil {
			return err
		}
		b.AddData(pub)

	case KindPkH:
		h, err := hash160(km, n.Key)
		if err != nil {
			return err
		}
		b.AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).
			AddData(h).AddOp(txscript.OP_EQUALVERIFY).
			AddOp(txscript.OP_CHECKSIG)

	case KindPkHLegacy:
		h, err := hash160(km, n.Key)
		if err != nil {
			return err
		}
		b.AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).
			AddData(h).AddOp(txscript.OP_EQUALVERIFY)

	case KindMulti:
		b.AddInt64(n.K)
		for _, key := range n.Keys {
			pub, err := pubkeyBytes(km, key, tapscript)
			if err != nil {
				return err
			}
			b.AddData(pub)
		}
		b.AddInt64(int64(len(n.Keys)))
		b.AddOp(txscript.OP_CHECKMULTISIG)

	case KindMultiA:
		for i, key := range n.Keys {
			pub, err := pubkeyBytes(km, key, tapscript)
			if err != nil {
				return err
			}
			b.AddData(pub)
			if i == 0 {
				b.AddOp(txscript.OP_CHECKSIG)
			} else {
				b.AddOp(txscript.OP_CHECKSIGADD)
			}
		}
		b.AddInt64(n.K).AddOp(txscript.OP_NUMEQUAL)

	case KindSha256, KindHash256, KindRipemd160, KindHash160:
		digest, err := digestBytes(n.Digest)
		if err != nil {
			return err
		}
		b.AddOp(txscript.OP_SIZE).AddInt64(32).
			AddOp(txscript.OP_EQUALVERIFY)
		switch n.Kind {
		case KindSha256:
			b.AddOp(txscript.OP_SHA256)
		case KindHash256:
			b.AddOp(txscript.OP_HASH256)
		case KindRipemd160:
			b.AddOp(txscript.OP_RIPEMD160)
		case KindHash160:
			b.AddOp(txscript.OP_HASH160)
		}
		b.AddData(digest).AddOp(txscript.OP_EQUAL)

	case KindOlder:
		b.AddInt64(n.K).AddOp(txscript.OP_CHECKSEQUENCEVERIFY)

	case KindAfter:
		b.AddInt64(n.K).AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)

	case KindAndOr:
		if err := compileNode(b, n.Children[0], km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_NOTIF)
		if err := compileNode(b, n.Children[2], km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ELSE)
		if err := compileNode(b, n.Children[1], km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ENDIF)

	case KindAndV:
		if err := compileNode(b, n.Children[0], km, tapscript); err != nil {
			return err
		}
		return compileNode(b, n.Children[1], km, tapscript)

	case KindAndB:
		if err := compileNode(b, n.Children[0], km, tapscript); err != nil {
			return err
		}
		if err := compileNode(b, n.Children[1], km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_BOOLAND)

	case KindOrB:
		if err := compileNode(b, n.Children[0], km, tapscript); err != nil {
			return err
		}
		if err := compileNode(b, n.Children[1], km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_BOOLOR)

	case KindOrC:
		if err := compileNode(b, n.Children[0], km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_NOTIF)
		if err := compileNode(b, n.Children[1], km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ENDIF)

	case KindOrD:
		if err := compileNode(b, n.Children[0], km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_IFDUP).AddOp(txscript.OP_NOTIF)
		if err := compileNode(b, n.Children[1], km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ENDIF)

	case KindOrI:
		b.AddOp(txscript.OP_IF)
		if err := compileNode(b, n.Children[0], km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ELSE)
		if err := compileNode(b, n.Children[1], km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ENDIF)

	case KindThresh:
		for i, c := range n.Children {
			if err := compileNode(b, c, km, tapscript); err != nil {
				return err
			}
			if i > 0 {
				b.AddOp(txscript.OP_ADD)
			}
		}
		b.AddInt64(n.K).AddOp(txscript.OP_EQUAL)

	case KindWrap:
		return compileWrap(b, n, km, tapscript)

	default:
		return fmt.Errorf("%w: cannot compile node kind %d",
			keyexpr.ErrParse, n.Kind)
	}
	return nil
}

func compileWrap(b *txscript.ScriptBuilder, n *Node, km *keyexpr.ExpansionMap,
	tapscript bool) error {

	child := n.Children[0]
	switch n.Wrapper {
	case 'a':
		b.AddOp(txscript.OP_TOALTSTACK)
		if err := compileNode(b, child, km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_FROMALTSTACK)

	case 's':
		b.AddOp(txscript.OP_SWAP)
		return compileNode(b, child, km, tapscript)

	case 'c':
		if err := compileNode(b, child, km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_CHECKSIG)

	case 'd':
		b.AddOp(txscript.OP_DUP).AddOp(txscript.OP_IF)
		if err := compileNode(b, child, km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ENDIF)

	case 'v':
		if err := compileNode(b, child, km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_VERIFY)

	case 'j':
		b.AddOp(txscript.OP_SIZE).AddOp(txscript.OP_0NOTEQUAL).
			AddOp(txscript.OP_IF)
		if err := compileNode(b, child, km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_ENDIF)

	case 'n':
		if err := compileNode(b, child, km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_0NOTEQUAL)

	case 't':
		if err := compileNode(b, child, km, tapscript); err != nil {
			return err
		}
		b.AddOp(txscript.OP_1)

	default:
		return fmt.Errorf("%w: unknown wrapper %q", keyexpr.ErrParse,
			string(n.Wrapper))
	}
	return nil
}
