// Package oracle fetches signed price bundles from the protocol's
// price feeds, validates them (quorum, freshness, signatures) and
// assembles the on-chain price proof forwarded with every liquidation.
package oracle

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
)

// Bundle is one oracle's signed price set.
type Bundle struct {
	OracleID  uint32
	Timestamp int64
	Prices    map[models.AssetID]*big.Int
	Signature []byte
	PublicKey []byte
}

// Client fetches price bundles over HTTP.
type Client struct {
	endpoints []string
	client    *http.Client
}

// NewClient builds a client over the configured feed endpoints, one
// oracle per endpoint.
func NewClient(endpoints []string) *Client {
	return &Client{
		endpoints: endpoints,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type bundlePayload struct {
	OracleID  uint32            `json:"oracle_id"`
	Timestamp int64             `json:"timestamp"`
	Prices    map[string]string `json:"prices"`
	Signature string            `json:"signature"`
	PublicKey string            `json:"public_key"`
}

// FetchAll collects one bundle per endpoint. Individual feed failures
// are tolerated; the error is non-nil only when every feed failed.
func (c *Client) FetchAll(ctx context.Context) ([]*Bundle, error) {
	var bundles []*Bundle
	var lastErr error

	for _, endpoint := range c.endpoints {
		b, err := c.fetch(ctx, endpoint)
		if err != nil {
			lastErr = err
			continue
		}
		bundles = append(bundles, b)
	}

	if len(bundles) == 0 {
		return nil, fmt.Errorf("all price feeds failed: %w", lastErr)
	}
	return bundles, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (*Bundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build price request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch prices from %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read price response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price feed %s status %d", endpoint, resp.StatusCode)
	}

	var payload bundlePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}
	return payload.toBundle()
}

func (p *bundlePayload) toBundle() (*Bundle, error) {
	b := &Bundle{
		OracleID:  p.OracleID,
		Timestamp: p.Timestamp,
		Prices:    make(map[models.AssetID]*big.Int, len(p.Prices)),
	}

	for assetHex, priceStr := range p.Prices {
		id, err := models.ParseAssetID(assetHex)
		if err != nil {
			return nil, err
		}
		price, ok := new(big.Int).SetString(priceStr, 10)
		if !ok || price.Sign() < 0 {
			return nil, fmt.Errorf("bad price %q for asset %s", priceStr, assetHex)
		}
		b.Prices[id] = price
	}

	var err error
	if b.Signature, err = base64.StdEncoding.DecodeString(p.Signature); err != nil {
		return nil, fmt.Errorf("decode price signature: %w", err)
	}
	if b.PublicKey, err = hex.DecodeString(p.PublicKey); err != nil {
		return nil, fmt.Errorf("decode oracle public key: %w", err)
	}
	return b, nil
}
