package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/polyflow/updown-data/internal/model"
)

// BookSnapshot is a full order book for one token.
type BookSnapshot struct {
	Bids []model.PriceLevel
	Asks []model.PriceLevel
}

// FetchBook fetches the complete order book for a token via the CLOB
// API. The response is a full book, not a delta.
func (c *Client) FetchBook(ctx context.Context, tokenID string) (*BookSnapshot, error) {
	query := url.Values{}
	query.Set("token_id", tokenID)

	var wire clobBook
	if err := c.get(ctx, c.clobURL, "/book", query, &wire); err != nil {
		return nil, fmt.Errorf("fetch book: %w", err)
	}

	return &BookSnapshot{
		Bids: toPriceLevels(wire.Bids),
		Asks: toPriceLevels(wire.Asks),
	}, nil
}

// toPriceLevels converts wire levels to model levels, skipping any
// with unparseable decimals.
func toPriceLevels(levels []clobLevel) []model.PriceLevel {
	out := make([]model.PriceLevel, 0, len(levels))
	for _, l := range levels {
		price, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(l.Size, 64)
		if err != nil {
			continue
		}
		out = append(out, model.PriceLevel{Price: price, Size: size})
	}
	return out
}
