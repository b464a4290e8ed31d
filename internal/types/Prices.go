/*

This file contains the externally signed price data that callers attach to operations.
Some oracle sources and some position adapters only accept a price when it comes with a
fresh signed message.

*/

package types

// SignedPrice is a price message and its signature, both as produced by the price provider.
type SignedPrice struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// PriceProofs maps a denom to the signed price data for it.
type PriceProofs map[string]SignedPrice

// Lookup returns the proof for denom if present.
func (p PriceProofs) Lookup(denom string) (SignedPrice, bool) {
	if p == nil {
		return SignedPrice{}, false
	}
	sp, ok := p[denom]
	return sp, ok
}
