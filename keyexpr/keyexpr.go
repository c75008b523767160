package keyexpr

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// KeyInfo describes a single key occurrence in a descriptor, spec §3.
type KeyInfo struct {
	// Pubkey is the resolved public key: 33 bytes (compressed, or 65
	// bytes for an uncompressed WIF or raw key) for legacy/segwit-v0
	// contexts, 32 bytes (x-only) for taproot contexts. A raw 32-byte
	// key stays 32 bytes in either context.
	Pubkey []byte

	// PrivKey is set when the key expression carried private material
	// (a WIF, or an xprv).
	PrivKey *btcec.PrivateKey

	// BIP32 is set when the key expression was an extended public or
	// private key.
	BIP32 *hdkeychain.ExtendedKey

	// MasterFingerprint is the 4-byte fingerprint from an optional
	// [fingerprint/path] origin prefix.
	MasterFingerprint []byte

	// OriginPath is the path text inside an optional [fingerprint/path]
	// origin prefix (without the leading master fingerprint).
	OriginPath string

	// KeyPath is the derivation path applied to BIP32 after the key
	// expression's own key material (e.g. "/0/3" in
	// "[fp/84'/0'/0']xpub.../0/3").
	KeyPath string

	// Path is OriginPath and KeyPath concatenated, representing the
	// full path from the master key to Pubkey. A '*' wildcard is kept
	// as written, not replaced by the derivation index.
	Path string

	// KeyExpression is the verbatim source text this KeyInfo was
	// resolved from.
	KeyExpression string
}

// ResolveKeyExpression implements spec §4.B: it parses expr (an optional
// origin, then an xpub/xprv/WIF/raw-pubkey, with an optional trailing BIP32
// path) against network, substituting index for any '*' wildcard, and
// returns the resolved KeyInfo.
//
// taproot selects whether the resulting Pubkey is normalized to x-only (32
// bytes) or left compressed (33 bytes).
func ResolveKeyExpression(expr string, network *chaincfg.Params,
	index *uint32, taproot bool) (*KeyInfo, error) {

	info := &KeyInfo{KeyExpression: expr}
	rest := expr

	if strings.HasPrefix(rest, "[") {
		closeIdx := strings.IndexByte(rest, ']')
		if closeIdx < 0 {
			return nil, fmt.Errorf("%w: unterminated key origin "+
				"in %q", ErrParse, expr)
		}
		origin := rest[1:closeIdx]
		fpHex, path, _ := strings.Cut(origin, "/")
		fp, err := hex.DecodeString(fpHex)
		if err != nil || len(fp) != 4 {
			return nil, fmt.Errorf("%w: invalid master "+
				"fingerprint %q", ErrParse, fpHex)
		}
		info.MasterFingerprint = fp
		if path != "" {
			info.OriginPath = "/" + normalizeHardened(path)
		}
		rest = rest[closeIdx+1:]
	}

	// The key material never contains '/', so the first '/' after it
	// marks the start of the derivation path.
	keyMaterial, keyPath, hasPath := strings.Cut(rest, "/")
	if hasPath {
		info.KeyPath = "/" + normalizeHardened(keyPath)
	}
	info.Path = info.OriginPath + info.KeyPath

	switch {
	case isExtendedKeyPrefix(keyMaterial):
		if err := resolveExtendedKey(
			info, keyMaterial, network, index,
		); err != nil {
			return nil, err
		}

	case looksLikeWIF(keyMaterial):
		if err := resolveWIF(info, keyMaterial, network); err != nil {
			return nil, err
		}

	case looksLikeRawPubkey(keyMaterial):
		if err := resolveRawPubkey(info, keyMaterial); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: unrecognized key expression %q",
			ErrParse, expr)
	}

	if taproot && len(info.Pubkey) == 33 {
		info.Pubkey = info.Pubkey[1:]
	}
	return info, nil
}

// normalizeHardened canonicalizes the hardened-derivation markers 'h'/'H'
// to the standard "'" before any path parsing, per spec §4.B.
func normalizeHardened(path string) string {
	r := strings.NewReplacer("h", "'", "H", "'")
	return r.Replace(path)
}

func isExtendedKeyPrefix(s string) bool {
	for _, p := range []string{"xpub", "xprv", "tpub", "tprv"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func resolveExtendedKey(info *KeyInfo, keyMaterial string,
	network *chaincfg.Params, index *uint32) error {

	key, err := hdkeychain.NewKeyFromString(keyMaterial)
	if err != nil {
		return fmt.Errorf("%w: invalid extended key %q: %v",
			ErrKeyDerivation, keyMaterial, err)
	}
	if network != nil && !key.IsForNet(network) {
		return fmt.Errorf("%w: %q", ErrNetworkMismatch,
			info.KeyExpression)
	}
	info.BIP32 = key

	derived, err := derivePath(key, info.KeyPath, index)
	if err != nil {
		return err
	}

	pub, err := derived.ECPubKey()
	if err != nil {
		if derived.IsPrivate() {
			return fmt.Errorf("%w: could not derive public key: "+
				"%v", ErrKeyDerivation, err)
		}
		return fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}
	info.Pubkey = pub.SerializeCompressed()

	if derived.IsPrivate() {
		priv, err := derived.ECPrivKey()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrKeyDerivation, err)
		}
		info.PrivKey = priv
	}
	return nil
}

// derivePath walks key's BIP32 path string (as produced by
// ResolveKeyExpression, already hardened-normalized), substituting index
// for a trailing '*' wildcard.
func derivePath(key *hdkeychain.ExtendedKey, path string,
	index *uint32) (*hdkeychain.ExtendedKey, error) {

	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return key, nil
	}

	current := key
	for _, part := range strings.Split(path, "/") {
		hardened := strings.HasSuffix(part, "'")
		part = strings.TrimSuffix(part, "'")

		var childNum uint32
		if part == "*" {
			if index == nil {
				return nil, fmt.Errorf("%w: wildcard '*' in "+
					"path but no index supplied", ErrRange)
			}
			childNum = *index
		} else {
			n, err := strconv.ParseUint(part, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid path "+
					"component %q", ErrParse, part)
			}
			childNum = uint32(n)
		}

		if hardened {
			if !current.IsPrivate() {
				return nil, fmt.Errorf("%w: hardened "+
					"derivation step requires private "+
					"material", ErrKeyDerivation)
			}
			childNum += hdkeychain.HardenedKeyStart
		}

		next, err := current.Derive(childNum)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
		}
		current = next
	}
	return current, nil
}

func looksLikeWIF(s string) bool {
	if len(s) == 0 {
		return false
	}
	// WIFs are base58check, length 51 (uncompressed) or 52 (compressed).
	return len(s) == 51 || len(s) == 52
}

func resolveWIF(info *KeyInfo, s string, network *chaincfg.Params) error {
	wif, err := btcutil.DecodeWIF(s)
	if err != nil {
		return fmt.Errorf("%w: invalid WIF %q: %v", ErrKeyDerivation,
			s, err)
	}
	if network != nil && !wif.IsForNet(network) {
		return fmt.Errorf("%w: %q", ErrNetworkMismatch, s)
	}
	info.PrivKey = wif.PrivKey
	if wif.CompressPubKey {
		info.Pubkey = wif.PrivKey.PubKey().SerializeCompressed()
	} else {
		info.Pubkey = wif.PrivKey.PubKey().SerializeUncompressed()
	}
	return nil
}

func looksLikeRawPubkey(s string) bool {
	switch len(s) {
	case 66, 64: // 33 or 32 raw bytes, hex-encoded.
		return isHex(s)
	case 130: // 65 raw bytes (uncompressed), hex-encoded.
		return isHex(s)
	default:
		return false
	}
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

func resolveRawPubkey(info *KeyInfo, s string) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: invalid hex pubkey %q", ErrParse, s)
	}

	switch len(raw) {
	case 32:
		if _, err := schnorr.ParsePubKey(raw); err != nil {
			return fmt.Errorf("%w: invalid x-only pubkey %q: %v",
				ErrKeyDerivation, s, err)
		}
		info.Pubkey = raw
	case 33:
		if raw[0] != 0x02 && raw[0] != 0x03 {
			return fmt.Errorf("%w: invalid compressed pubkey "+
				"prefix in %q", ErrKeyDerivation, s)
		}
		if _, err := btcec.ParsePubKey(raw); err != nil {
			return fmt.Errorf("%w: invalid pubkey %q: %v",
				ErrKeyDerivation, s, err)
		}
		info.Pubkey = raw
	case 65:
		if raw[0] != 0x04 {
			return fmt.Errorf("%w: invalid uncompressed pubkey "+
				"prefix in %q", ErrKeyDerivation, s)
		}
		if _, err := btcec.ParsePubKey(raw); err != nil {
			return fmt.Errorf("%w: invalid pubkey %q: %v",
				ErrKeyDerivation, s, err)
		}
		info.Pubkey = raw
	default:
		return fmt.Errorf("%w: unexpected raw pubkey length %d in "+
			"%q", ErrParse, len(raw), s)
	}
	return nil
}
