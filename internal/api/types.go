package api

import "encoding/json"

// TokenPair holds the two CLOB token ids of one up/down market.
type TokenPair struct {
	YesTokenID string
	NoTokenID  string
}

// gammaMarket is the wire format of one market from the Gamma API.
//
// Token ids appear in either the tokens array or, on older listings,
// as clobTokenIds/outcomes. Both of the latter can arrive as JSON
// arrays or as JSON strings containing encoded arrays.
type gammaMarket struct {
	Tokens       []gammaToken    `json:"tokens"`
	ClobTokenIDs json.RawMessage `json:"clobTokenIds"`
	Outcomes     json.RawMessage `json:"outcomes"`
}

type gammaToken struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

// clobBook is the wire format of a CLOB order-book snapshot. Prices
// and sizes are decimal strings.
type clobBook struct {
	Bids []clobLevel `json:"bids"`
	Asks []clobLevel `json:"asks"`
}

type clobLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// decodeStringList decodes a field that is either a JSON array of
// strings or a JSON string containing an encoded array of strings.
func decodeStringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(encoded), &list); err != nil {
		return nil
	}
	return list
}
