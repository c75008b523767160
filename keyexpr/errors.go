package keyexpr

import "errors"

// Sentinel errors identifying the failure taxonomy shared by every package
// in this module. Callers can use errors.Is against these to classify a
// failure without parsing the message text.
var (
	// ErrParse covers malformed descriptor, multipath tuple, tap-tree,
	// or miniscript text.
	ErrParse = errors.New("parse error")

	// ErrNetworkMismatch is returned when a key is encoded for a
	// different network than the one the descriptor was built with.
	ErrNetworkMismatch = errors.New("invalid network version")

	// ErrChecksum is returned when a required checksum is missing or
	// incorrect.
	ErrChecksum = errors.New("checksum error")

	// ErrRange is returned when a wildcard '*' has no index, or the
	// index is out of the allowed range.
	ErrRange = errors.New("range error")

	// ErrKeyDerivation covers hardened derivation without private
	// material, and invalid xpub/xprv/WIF encodings.
	ErrKeyDerivation = errors.New("key derivation error")

	// ErrPolicy covers non-sane miniscript, disallowed wrapper nesting,
	// and out-of-range multisig thresholds.
	ErrPolicy = errors.New("policy error")

	// ErrResourceLimit covers every consensus/policy limit enforced by
	// the descriptor package, including tap-tree depth.
	ErrResourceLimit = errors.New("resource limit error")

	// ErrSatisfaction is returned when no branch can be satisfied with
	// the supplied signatures/preimages, or an incompatible taproot
	// spend-path/tapLeaf combination was requested.
	ErrSatisfaction = errors.New("satisfaction error")

	// ErrValueGuard is returned when a PSBT value is not a non-negative
	// integer.
	ErrValueGuard = errors.New("value guard error")
)
