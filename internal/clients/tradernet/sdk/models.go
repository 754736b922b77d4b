package sdk

// GetPositionJSONParams are the parameters of getPositionJson; the command takes none
type GetPositionJSONParams struct{}

// Position is one entry of result.ps.pos in getPositionJson
type Position struct {
	Symbol        string
	Quantity      float64
	AvgPrice      float64
	CurrentPrice  float64
	ClosePrice    float64
	UnrealizedPnL float64
	Currency      string
}
