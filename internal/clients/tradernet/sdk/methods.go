package sdk

import (
	"context"
)

// AccountSummary returns the raw getPositionJson answer.
//
// The positions live under result.ps.pos, each with:
//   - i: instrument symbol
//   - q: quantity
//   - bal_price_a: average price
//   - mkt_price: current market price
//   - close_price: previous close
//   - profit_close: unrealized P&L
//   - curr: currency
func (c *Client) AccountSummary(ctx context.Context) (map[string]interface{}, error) {
	return c.authorizedRequest(ctx, "getPositionJson", GetPositionJSONParams{})
}
