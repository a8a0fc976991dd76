package model

import (
	"regexp"

	"github.com/luxfi/geth/common"
)

var addressRE = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ParseRecipient validates and returns the 20-byte EVM address encoded by
// s: 0x-prefixed, 40 hex digits, checksum-insensitive; case is not
// checked against EIP-55.
func ParseRecipient(s string) (common.Address, error) {
	if !addressRE.MatchString(s) {
		return common.Address{}, ValidationError("recipient is not a 0x-prefixed 20-byte address: " + s)
	}
	return common.HexToAddress(s), nil
}

// LooksLikeEVMAddress reports whether s has the shape of a 0x-prefixed
// 40-hex-digit literal, used by the listener's best-effort scan over
// transition fields (which are untyped strings) before full validation.
func LooksLikeEVMAddress(s string) bool {
	return addressRE.MatchString(s)
}
