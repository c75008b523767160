package descriptor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightninglabs/outputdesc/keyexpr"
	"github.com/lightninglabs/outputdesc/miniscript"
	"github.com/lightninglabs/outputdesc/taproot"
)

// WrapperKind identifies the outermost function of a descriptor, spec §4.I.
type WrapperKind int

const (
	WrapperPK WrapperKind = iota
	WrapperPKH
	WrapperWPKH
	WrapperSHWPKH
	WrapperSHWSH
	WrapperWSH
	WrapperSH
	WrapperTR
	WrapperAddr
	WrapperRaw
	WrapperCombo
)

// Options configures Output construction.
type Options struct {
	Network *chaincfg.Params

	// Index resolves a trailing wildcard '*' in a key path.
	Index *uint32

	// Change resolves a /<a;b;...> multipath tuple or /** shorthand.
	Change *int

	// ChecksumRequired, when true, fails construction if text has no
	// trailing #-prefixed checksum.
	ChecksumRequired bool

	// TaprootSpendPath is "key" or "script"; empty means "whichever the
	// descriptor supports", deferred to GetScriptSatisfaction.
	TaprootSpendPath string

	// TapLeaf selects a specific tapscript leaf by its miniscript text.
	TapLeaf string
}

// Output is the top-level, immutable-after-construction entity spec §3
// names: a parsed descriptor plus its resolved scriptPubKey/address and
// cached expansion artifacts.
type Output struct {
	resolvedText string
	network      *chaincfg.Params
	opts         Options

	Wrapper      WrapperKind
	ScriptPubKey []byte
	Address      string
	IsSegwit     bool
	IsTaproot    bool

	// ComboScripts holds every scriptPubKey combo(KEY) generates
	// (p2pk, p2pkh, p2wpkh, p2sh-p2wpkh); only populated for WrapperCombo.
	ComboScripts [][]byte

	keyInfo      *keyexpr.KeyInfo // pk/pkh/wpkh/sh(wpkh) single key
	redeemScript []byte           // sh(*) redeem script
	witnessScript []byte          // wsh(*)/sh(wsh(*)) witness script
	miniNode     *miniscript.Node
	expansion    *keyexpr.ExpansionMap

	internalKeyInfo *keyexpr.KeyInfo
	tapInfo         *taproot.Info
	outputKey       *taproot.OutputKey
}

// NewOutput implements spec §4.I's construction path: checksum enforcement,
// multipath resolution, range handling, wrapper detection, and scriptPubKey/
// address assembly.
func NewOutput(text string, opts Options) (*Output, error) {
	text = strings.TrimSpace(text)

	if !ChecksumVerify(text, opts.ChecksumRequired) {
		return nil, fmt.Errorf("%w: descriptor checksum is missing or "+
			"incorrect", keyexpr.ErrChecksum)
	}
	text = ChecksumStrip(text)

	resolved, err := ResolveMultipath(text, opts.Change)
	if err != nil {
		return nil, err
	}

	if strings.Contains(resolved, "*") && opts.Index == nil {
		return nil, fmt.Errorf("%w: descriptor contains a wildcard "+
			"but no index was supplied", keyexpr.ErrRange)
	}

	if opts.TapLeaf != "" && opts.TaprootSpendPath == "key" {
		return nil, fmt.Errorf("%w: tapLeaf cannot be used when "+
			"taprootSpendPath is key", keyexpr.ErrSatisfaction)
	}

	out := &Output{resolvedText: resolved, network: opts.Network, opts: opts}
	if err := out.build(resolved); err != nil {
		return nil, err
	}
	return out, nil
}

// Network returns the network this Output was constructed with.
func (o *Output) Network() *chaincfg.Params { return o.network }

// IsRange reports whether the descriptor contains a wildcard '*'.
func (o *Output) IsRange() bool {
	return strings.Contains(o.resolvedText, "*")
}

// Format returns the descriptor text (post multipath-resolution) with a
// freshly computed checksum appended.
func (o *Output) Format() string {
	return ChecksumCreate(o.resolvedText)
}

func (o *Output) build(text string) error {
	name, args, err := splitFuncCall(text)
	if err != nil {
		return err
	}

	switch name {
	case "pk":
		return o.buildBareKey(WrapperPK, args)
	case "pkh":
		return o.buildP2PKH(args)
	case "wpkh":
		return o.buildP2WPKH(args)
	case "combo":
		return o.buildCombo(args)
	case "sh":
		return o.buildSH(args)
	case "wsh":
		return o.buildWSH(args)
	case "tr":
		return o.buildTR(args)
	case "addr":
		return o.buildAddr(args)
	case "raw":
		return o.buildRaw(args)
	default:
		return fmt.Errorf("%w: unrecognized top-level wrapper %q",
			keyexpr.ErrParse, name)
	}
}

func (o *Output) buildBareKey(kind WrapperKind, keyExpr string) error {
	info, err := keyexpr.ResolveKeyExpression(
		strings.TrimSpace(keyExpr), o.network, o.opts.Index, false,
	)
	if err != nil {
		return err
	}
	o.Wrapper = kind
	o.keyInfo = info

	script, err := txscript.NewScriptBuilder().
		AddData(info.Pubkey).AddOp(txscript.OP_CHECKSIG).Script()
	if err != nil {
		return fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	o.ScriptPubKey = script
	return nil
}

func (o *Output) buildP2PKH(keyExpr string) error {
	info, err := keyexpr.ResolveKeyExpression(
		strings.TrimSpace(keyExpr), o.network, o.opts.Index, false,
	)
	if err != nil {
		return err
	}
	o.Wrapper = WrapperPKH
	o.keyInfo = info

	script, addr, err := p2pkhScript(info.Pubkey, o.network)
	if err != nil {
		return err
	}
	o.ScriptPubKey = script
	o.Address = addr
	return nil
}

func (o *Output) buildP2WPKH(keyExpr string) error {
	info, err := keyexpr.ResolveKeyExpression(
		strings.TrimSpace(keyExpr), o.network, o.opts.Index, false,
	)
	if err != nil {
		return err
	}
	if len(info.Pubkey) != 33 {
		return fmt.Errorf("%w: wpkh requires a compressed pubkey",
			keyexpr.ErrPolicy)
	}
	o.Wrapper = WrapperWPKH
	o.keyInfo = info
	o.IsSegwit = true

	script, addr, err := p2wpkhScript(info.Pubkey, o.network)
	if err != nil {
		return err
	}
	o.ScriptPubKey = script
	o.Address = addr
	return nil
}

func (o *Output) buildCombo(keyExpr string) error {
	info, err := keyexpr.ResolveKeyExpression(
		strings.TrimSpace(keyExpr), o.network, o.opts.Index, false,
	)
	if err != nil {
		return err
	}
	o.Wrapper = WrapperCombo
	o.keyInfo = info

	p2pk, err := txscript.NewScriptBuilder().
		AddData(info.Pubkey).AddOp(txscript.OP_CHECKSIG).Script()
	if err != nil {
		return fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	p2pkh, pkhAddr, err := p2pkhScript(info.Pubkey, o.network)
	if err != nil {
		return err
	}
	o.ComboScripts = [][]byte{p2pk, p2pkh}

	if len(info.Pubkey) == 33 {
		p2wpkh, addr, err := p2wpkhScript(info.Pubkey, o.network)
		if err != nil {
			return err
		}
		shWrapped, _, err := p2shScript(p2wpkh, o.network)
		if err != nil {
			return err
		}
		o.ComboScripts = append(o.ComboScripts, p2wpkh, shWrapped)

		// Per Bitcoin Core's combo() semantics the segwit variant is
		// the primary scriptPubKey/address.
		o.ScriptPubKey = p2wpkh
		o.Address = addr
		o.IsSegwit = true
		return nil
	}

	o.ScriptPubKey = p2pkh
	o.Address = pkhAddr
	return nil
}

func (o *Output) buildSH(args string) error {
	inner, isWSH, isWPKH := detectShInner(args)
	switch {
	case isWPKH:
		info, err := keyexpr.ResolveKeyExpression(
			strings.TrimSpace(inner), o.network, o.opts.Index, false,
		)
		if err != nil {
			return err
		}
		if len(info.Pubkey) != 33 {
			return fmt.Errorf("%w: wpkh requires a compressed "+
				"pubkey", keyexpr.ErrPolicy)
		}
		o.Wrapper = WrapperSHWPKH
		o.keyInfo = info
		o.IsSegwit = true

		redeem, _, err := p2wpkhScript(info.Pubkey, o.network)
		if err != nil {
			return err
		}
		o.redeemScript = redeem

		script, addr, err := p2shScript(redeem, o.network)
		if err != nil {
			return err
		}
		o.ScriptPubKey = script
		o.Address = addr
		return nil

	case isWSH:
		if err := o.compileScript(inner, false); err != nil {
			return err
		}
		if err := assertSegwitV0KeysCompressed(o.expansion); err != nil {
			return err
		}
		o.Wrapper = WrapperSHWSH
		o.IsSegwit = true

		witnessHash := sha256.Sum256(o.witnessScript)
		redeem, err := txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).AddData(witnessHash[:]).Script()
		if err != nil {
			return fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
		}
		o.redeemScript = redeem

		script, addr, err := p2shScript(redeem, o.network)
		if err != nil {
			return err
		}
		o.ScriptPubKey = script
		o.Address = addr
		return nil

	default:
		if err := o.compileScript(args, false); err != nil {
			return err
		}
		o.Wrapper = WrapperSH
		o.redeemScript = o.witnessScript
		o.witnessScript = nil

		script, addr, err := p2shScript(o.redeemScript, o.network)
		if err != nil {
			return err
		}
		o.ScriptPubKey = script
		o.Address = addr
		return nil
	}
}

func (o *Output) buildWSH(args string) error {
	if err := o.compileScript(args, false); err != nil {
		return err
	}
	if err := assertSegwitV0KeysCompressed(o.expansion); err != nil {
		return err
	}
	o.Wrapper = WrapperWSH
	o.IsSegwit = true

	witnessHash := sha256.Sum256(o.witnessScript)
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).AddData(witnessHash[:]).Script()
	if err != nil {
		return fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	o.ScriptPubKey = script

	addr, err := btcutil.NewAddressWitnessScriptHash(witnessHash[:], o.network)
	if err != nil {
		return fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	o.Address = addr.EncodeAddress()
	return nil
}

// compileScript expands and compiles args (either generic miniscript or a
// top-level sortedmulti/sortedmulti_a call, spec §4.I) into o.witnessScript,
// o.miniNode and o.expansion.
func (o *Output) compileScript(args string, taproot bool) error {
	if isSortedMultiCall(args) {
		compiled, km, err := compileSortedMulti(
			args, o.network, o.opts.Index, taproot,
		)
		if err != nil {
			return err
		}
		o.witnessScript = compiled.Script
		o.expansion = km
		return nil
	}

	expanded, err := miniscript.Expand(args, o.network, o.opts.Index, taproot)
	if err != nil {
		return err
	}
	node, err := miniscript.Parse(expanded.Expanded)
	if err != nil {
		return err
	}
	compiled, err := miniscript.Compile(node, expanded.Keys, taproot)
	if err != nil {
		return err
	}
	if !compiled.Sane {
		return fmt.Errorf("%w: script is not sane as a top-level "+
			"expression", keyexpr.ErrPolicy)
	}

	o.miniNode = node
	o.witnessScript = compiled.Script
	o.expansion = expanded.Keys
	return nil
}

// assertSegwitV0KeysCompressed rejects an uncompressed pubkey resolved from
// any pk/pkh/pk_k/pk_h fragment (or a sortedmulti/sortedmulti_a key) inside a
// wsh()/sh(wsh()) script, per spec's explicit ban on uncompressed pubkeys in
// wpkh/wsh contexts. wpkh's own single-key path checks this directly in
// buildP2WPKH/buildSH's isWPKH branch; this covers every key reached through
// the generic miniscript path instead.
func assertSegwitV0KeysCompressed(km *keyexpr.ExpansionMap) error {
	if km == nil {
		return nil
	}
	for _, placeholder := range km.Placeholders() {
		info, ok := km.Get(placeholder)
		if !ok {
			continue
		}
		if len(info.Pubkey) != 33 {
			return fmt.Errorf("%w: uncompressed pubkey %q not allowed "+
				"in wsh/wpkh", keyexpr.ErrPolicy, info.KeyExpression)
		}
	}
	return nil
}

func (o *Output) buildTR(args string) error {
	parts := splitTopLevelArgsDescriptor(args)
	if len(parts) < 1 || len(parts) > 2 {
		return fmt.Errorf("%w: tr() takes one or two arguments",
			keyexpr.ErrParse)
	}

	internalInfo, err := keyexpr.ResolveKeyExpression(
		strings.TrimSpace(parts[0]), o.network, o.opts.Index, true,
	)
	if err != nil {
		return err
	}
	o.Wrapper = WrapperTR
	o.IsSegwit = true
	o.IsTaproot = true
	o.internalKeyInfo = internalInfo

	treeText := ""
	if len(parts) == 2 {
		treeText = strings.TrimSpace(parts[1])
	}
	info, err := taproot.BuildInfo(treeText, o.network, o.opts.Index)
	if err != nil {
		return err
	}
	o.tapInfo = info

	internalKey, err := schnorr.ParsePubKey(internalInfo.Pubkey)
	if err != nil {
		return fmt.Errorf("%w: %v", keyexpr.ErrKeyDerivation, err)
	}
	outputKey, err := info.TweakInternalKey(internalKey)
	if err != nil {
		return err
	}
	o.outputKey = outputKey

	xonly := schnorr.SerializePubKey(outputKey.Key)
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_1).AddData(xonly).Script()
	if err != nil {
		return fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	o.ScriptPubKey = script

	addr, err := btcutil.NewAddressTaproot(xonly, o.network)
	if err != nil {
		return fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	o.Address = addr.EncodeAddress()
	return nil
}

func (o *Output) buildAddr(args string) error {
	addr, err := btcutil.DecodeAddress(strings.TrimSpace(args), o.network)
	if err != nil {
		return fmt.Errorf("%w: invalid address %q: %v", keyexpr.ErrParse,
			args, err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	o.Wrapper = WrapperAddr
	o.ScriptPubKey = script
	o.Address = addr.EncodeAddress()

	switch addr.(type) {
	case *btcutil.AddressWitnessPubKeyHash, *btcutil.AddressWitnessScriptHash:
		o.IsSegwit = true
	case *btcutil.AddressTaproot:
		o.IsSegwit = true
		o.IsTaproot = true
	}
	return nil
}

func (o *Output) buildRaw(args string) error {
	script, err := hex.DecodeString(strings.TrimSpace(args))
	if err != nil {
		return fmt.Errorf("%w: invalid raw script hex %q", keyexpr.ErrParse,
			args)
	}
	o.Wrapper = WrapperRaw
	o.ScriptPubKey = script
	return nil
}

func p2pkhScript(pubkey []byte, network *chaincfg.Params) ([]byte, string, error) {
	hash := btcutil.Hash160(pubkey)
	addr, err := btcutil.NewAddressPubKeyHash(hash, network)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	return script, addr.EncodeAddress(), nil
}

func p2wpkhScript(pubkey []byte, network *chaincfg.Params) ([]byte, string, error) {
	hash := btcutil.Hash160(pubkey)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, network)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	return script, addr.EncodeAddress(), nil
}

func p2shScript(redeemScript []byte, network *chaincfg.Params) ([]byte, string, error) {
	addr, err := btcutil.NewAddressScriptHash(redeemScript, network)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", keyexpr.ErrParse, err)
	}
	return script, addr.EncodeAddress(), nil
}

// detectShInner reports whether args (sh(...)'s inner text) is itself a
// wsh(...) or wpkh(...) call, returning that inner call's own argument.
// Detection checks sh(wsh(...)) and sh(wpkh(...)) before treating args as
// generic miniscript, per spec §4.I's longest-to-shortest wrapper scan.
func detectShInner(args string) (inner string, isWSH, isWPKH bool) {
	name, innerArgs, err := splitFuncCall(args)
	if err != nil {
		return "", false, false
	}
	switch name {
	case "wsh":
		return innerArgs, true, false
	case "wpkh":
		return innerArgs, false, true
	default:
		return "", false, false
	}
}

// splitFuncCall splits text as name(args), requiring the parentheses to be
// balanced and the outermost pair to span the entire remainder of text.
func splitFuncCall(text string) (name, args string, err error) {
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
				return "", "", fmt.Errorf("%w: unexpected "+
					"trailing text after %q", keyexpr.ErrParse,
					text[:i+1])
			}
		}
	}
	if depth != 0 {
		return "", "", fmt.Errorf("%w: unbalanced parentheses in %q",
			keyexpr.ErrParse, text)
	}

	return text[:idx], text[idx+1 : len(text)-1], nil
}

// splitTopLevelArgsDescriptor splits body on commas at paren/brace depth 0;
// the same depth-tracked comma split miniscript's parser uses internally,
// extended to {} so a tr() script tree stays one argument, and duplicated
// here since that helper is unexported in the miniscript package.
func splitTopLevelArgsDescriptor(body string) []string {
	if body == "" {
		return nil
	}
	var args []string
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
				args = append(args, body[last:i])
				last = i + 1
			}
		}
	}
	args = append(args, body[last:])
	return args
}
