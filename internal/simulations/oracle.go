package simulations

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/elys-network/fundmanager/internal/protocol"
	"github.com/elys-network/fundmanager/internal/types"
)

var (
	ErrUnknownDenom   = errors.New("no price source for denom")
	ErrMissingPrice   = errors.New("missing signed price")
	ErrBadSignature   = errors.New("invalid price signature")
	ErrStalePrice     = errors.New("signed price is stale")
	ErrMarketMismatch = errors.New("signed price is for another market")
	ErrMalformedPrice = errors.New("malformed signed price")
	ErrSourceLoop     = errors.New("price sources reference each other")
)

const maxReferenceDepth = 4

type priceSource interface {
	price(ctx context.Context, o *MultiOracle, proofs types.PriceProofs, denom string, depth int) (sdkmath.LegacyDec, error)
}

type fixedPrice struct {
	value sdkmath.LegacyDec
}

func (s fixedPrice) price(context.Context, *MultiOracle, types.PriceProofs, string, int) (sdkmath.LegacyDec, error) {
	return s.value, nil
}

// fixedMultiplier prices a coin as a constant multiple of a reference coin, for example a
// liquid staking token priced from the base asset.
type fixedMultiplier struct {
	reference  string
	multiplier sdkmath.LegacyDec
}

func (s fixedMultiplier) price(ctx context.Context, o *MultiOracle, proofs types.PriceProofs, _ string, depth int) (sdkmath.LegacyDec, error) {
	ref, err := o.priceAt(ctx, s.reference, proofs, depth+1)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	return ref.Mul(s.multiplier), nil
}

// signedSource only accepts prices delivered as messages signed by a price provider.
type signedSource struct {
	marketID string
	key      *secp256k1.PublicKey
	lifetime time.Duration
}

func (s signedSource) price(_ context.Context, o *MultiOracle, proofs types.PriceProofs, denom string, _ int) (sdkmath.LegacyDec, error) {
	proof, ok := proofs.Lookup(denom)
	if !ok {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w for %s", ErrMissingPrice, denom)
	}
	marketID, price, at, err := VerifySignedPrice(s.key, proof)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	if marketID != s.marketID {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: got %s, want %s", ErrMarketMismatch, marketID, s.marketID)
	}
	if !at.Add(s.lifetime).After(o.clock()) {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s signed at %s", ErrStalePrice, denom, at.Format(time.RFC3339))
	}
	return price, nil
}

// MultiOracle routes price requests to a per-denom source.
type MultiOracle struct {
	mu      sync.RWMutex
	sources map[string]priceSource
	clock   func() time.Time
}

var _ protocol.Oracle = (*MultiOracle)(nil)
var _ protocol.Checkpointer = (*MultiOracle)(nil)

func NewMultiOracle(clock func() time.Time) *MultiOracle {
	if clock == nil {
		clock = time.Now
	}
	return &MultiOracle{sources: make(map[string]priceSource), clock: clock}
}

func (o *MultiOracle) SetFixedPrice(denom string, price sdkmath.LegacyDec) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources[denom] = fixedPrice{value: price}
}

func (o *MultiOracle) SetFixedMultiplier(denom, reference string, multiplier sdkmath.LegacyDec) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources[denom] = fixedMultiplier{reference: reference, multiplier: multiplier}
}

func (o *MultiOracle) SetSignedSource(denom, marketID string, key *secp256k1.PublicKey, lifetime time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources[denom] = signedSource{marketID: marketID, key: key, lifetime: lifetime}
}

func (o *MultiOracle) GetPrice(ctx context.Context, denom string, proofs types.PriceProofs) (sdkmath.LegacyDec, error) {
	return o.priceAt(ctx, denom, proofs, 0)
}

func (o *MultiOracle) priceAt(ctx context.Context, denom string, proofs types.PriceProofs, depth int) (sdkmath.LegacyDec, error) {
	if depth > maxReferenceDepth {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w at %s", ErrSourceLoop, denom)
	}
	o.mu.RLock()
	src, ok := o.sources[denom]
	o.mu.RUnlock()
	if !ok {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s", ErrUnknownDenom, denom)
	}
	return src.price(ctx, o, proofs, denom, depth)
}

func (o *MultiOracle) Checkpoint() func() {
	o.mu.RLock()
	saved := make(map[string]priceSource, len(o.sources))
	for k, v := range o.sources {
		saved[k] = v
	}
	o.mu.RUnlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.sources = saved
	}
}

// Signed price messages have the form "<market id>|<price>|<unix seconds>" and are signed
// with ECDSA over the SHA-256 of the message.

// SignPrice produces a signed price message.
func SignPrice(key *secp256k1.PrivateKey, marketID string, price sdkmath.LegacyDec, at time.Time) types.SignedPrice {
	message := fmt.Sprintf("%s|%s|%d", marketID, price.String(), at.Unix())
	digest := sha256.Sum256([]byte(message))
	sig := ecdsa.Sign(key, digest[:])
	return types.SignedPrice{Message: message, Signature: hex.EncodeToString(sig.Serialize())}
}

// VerifySignedPrice checks the signature and decodes the message.
func VerifySignedPrice(key *secp256k1.PublicKey, proof types.SignedPrice) (string, sdkmath.LegacyDec, time.Time, error) {
	raw, err := hex.DecodeString(proof.Signature)
	if err != nil {
		return "", sdkmath.LegacyZeroDec(), time.Time{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	sig, err := ecdsa.ParseDERSignature(raw)
	if err != nil {
		return "", sdkmath.LegacyZeroDec(), time.Time{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	digest := sha256.Sum256([]byte(proof.Message))
	if !sig.Verify(digest[:], key) {
		return "", sdkmath.LegacyZeroDec(), time.Time{}, ErrBadSignature
	}

	parts := strings.Split(proof.Message, "|")
	if len(parts) != 3 {
		return "", sdkmath.LegacyZeroDec(), time.Time{}, fmt.Errorf("%w: %q", ErrMalformedPrice, proof.Message)
	}
	price, err := sdkmath.LegacyNewDecFromStr(parts[1])
	if err != nil {
		return "", sdkmath.LegacyZeroDec(), time.Time{}, fmt.Errorf("%w: %w", ErrMalformedPrice, err)
	}
	unix, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", sdkmath.LegacyZeroDec(), time.Time{}, fmt.Errorf("%w: %w", ErrMalformedPrice, err)
	}
	return parts[0], price, time.Unix(unix, 0).UTC(), nil
}
