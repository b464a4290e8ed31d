/*
This file fetches signed price proofs from an external price provider.

The bot attaches the proofs to valuation and unstake operations. Signatures are not
checked here; the oracle and the position adapters verify what they consume.
*/

package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elys-network/fundmanager/internal/logger"
	"github.com/elys-network/fundmanager/internal/types"
)

var feedLogger = logger.GetForComponent("price_feed")

var ErrInvalidProof = errors.New("invalid price proof received")
var ErrFeedUnavailable = errors.New("price feed unavailable")

const (
	MAX_RETRIES     = 3
	TIMEOUT_SECONDS = 30
	maxBodyBytes    = 1 << 20
)

type proofsResponse struct {
	Proofs map[string]types.SignedPrice `json:"proofs"`
}

// Feed is an HTTP source of signed price proofs.
type Feed struct {
	url     string
	apiKey  string
	denoms  []string
	client  *http.Client
	backoff time.Duration
}

// NewFeed creates a feed for url. When denoms is not empty only those proofs are kept.
func NewFeed(url, apiKey string, denoms []string) *Feed {
	return &Feed{
		url:     url,
		apiKey:  apiKey,
		denoms:  denoms,
		client:  &http.Client{Timeout: TIMEOUT_SECONDS * time.Second},
		backoff: time.Second,
	}
}

// validateProof checks that a proof has the "<market>|<price>|<unix>" shape.
func validateProof(denom string, proof types.SignedPrice) error {
	if strings.TrimSpace(proof.Signature) == "" {
		return fmt.Errorf("%w: missing signature for %s", ErrInvalidProof, denom)
	}
	parts := strings.Split(proof.Message, "|")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return fmt.Errorf("%w: malformed message for %s: %q", ErrInvalidProof, denom, proof.Message)
	}
	return nil
}

// PriceProofs fetches the latest proofs, retrying transient failures.
func (f *Feed) PriceProofs(ctx context.Context) (types.PriceProofs, error) {
	var lastErr error
	for attempt := 1; attempt <= MAX_RETRIES; attempt++ {
		proofs, retry, err := f.fetch(ctx)
		if err == nil {
			return proofs, nil
		}
		lastErr = err
		if !retry {
			break
		}
		feedLogger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("maxRetries", MAX_RETRIES).
			Msg("Price feed request failed, will retry if attempts remain")

		if attempt < MAX_RETRIES {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * f.backoff):
			}
		}
	}
	return nil, lastErr
}

// fetch performs one request. retry reports whether the failure is transient.
func (f *Feed) fetch(ctx context.Context) (types.PriceProofs, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build price feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, true, fmt.Errorf("%w: read body: %w", ErrFeedUnavailable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("%w: status %d", ErrFeedUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("price feed returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed proofsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, false, fmt.Errorf("%w: decode: %w", ErrInvalidProof, err)
	}

	proofs := make(types.PriceProofs, len(parsed.Proofs))
	if len(f.denoms) == 0 {
		for denom, proof := range parsed.Proofs {
			if err := validateProof(denom, proof); err != nil {
				return nil, false, err
			}
			proofs[denom] = proof
		}
	} else {
		for _, denom := range f.denoms {
			proof, ok := parsed.Proofs[denom]
			if !ok {
				return nil, false, fmt.Errorf("%w: no proof for %s", ErrInvalidProof, denom)
			}
			if err := validateProof(denom, proof); err != nil {
				return nil, false, err
			}
			proofs[denom] = proof
		}
	}

	feedLogger.Debug().Int("proofs", len(proofs)).Msg("Fetched price proofs")
	return proofs, false, nil
}
