package api

import (
	"context"
	"fmt"
	"net/url"
)

// ResolveMarket resolves a market slug to its YES/NO token ids via
// the Gamma API. A nil pair with nil error means the market is not
// (yet) listed; callers retry on their next cycle.
func (c *Client) ResolveMarket(ctx context.Context, slug string) (*TokenPair, error) {
	query := url.Values{}
	query.Set("slug", slug)

	var markets []gammaMarket
	if err := c.get(ctx, c.gammaURL, "/markets", query, &markets); err != nil {
		return nil, fmt.Errorf("resolve market %s: %w", slug, err)
	}
	if len(markets) == 0 {
		return nil, nil
	}

	pair := tokensFromMarket(markets[0])
	if pair == nil {
		c.logger.Debug("market listed without usable token ids", "slug", slug)
	}
	return pair, nil
}

// tokensFromMarket extracts the YES/NO token pair, trying the tokens
// array first and falling back to clobTokenIds/outcomes.
func tokensFromMarket(m gammaMarket) *TokenPair {
	var pair TokenPair

	for _, t := range m.Tokens {
		switch t.Outcome {
		case "Yes", "Up":
			pair.YesTokenID = t.TokenID
		case "No", "Down":
			pair.NoTokenID = t.TokenID
		}
	}

	if pair.YesTokenID == "" || pair.NoTokenID == "" {
		ids := decodeStringList(m.ClobTokenIDs)
		outcomes := decodeStringList(m.Outcomes)
		if len(ids) >= 2 && len(outcomes) >= 2 {
			for i, o := range outcomes {
				if i >= len(ids) {
					break
				}
				switch o {
				case "Up", "Yes":
					pair.YesTokenID = ids[i]
				case "Down", "No":
					pair.NoTokenID = ids[i]
				}
			}
		}
	}

	if pair.YesTokenID == "" || pair.NoTokenID == "" {
		return nil
	}
	return &pair
}
