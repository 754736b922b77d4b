package tradernet

import (
	"fmt"
	"strconv"

	"github.com/aristath/sentinel-insights/internal/clients/tradernet/sdk"
)

// transformPositions extracts result.ps.pos from a getPositionJson answer
func transformPositions(sdkResult map[string]interface{}) ([]sdk.Position, error) {
	result, ok := sdkResult["result"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid SDK result format: missing 'result' field")
	}

	ps, ok := result["ps"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid SDK result format: missing 'ps' field")
	}

	// An account without positions may omit the array
	rawPos, exists := ps["pos"]
	if !exists || rawPos == nil {
		return []sdk.Position{}, nil
	}
	posArray, ok := rawPos.([]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid SDK result format: 'pos' is %T, not an array", rawPos)
	}

	positions := make([]sdk.Position, 0, len(posArray))
	for i, posItem := range posArray {
		posMap, ok := posItem.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid SDK result format: position %d is %T", i, posItem)
		}

		positions = append(positions, sdk.Position{
			Symbol:        getString(posMap, "i"),
			Quantity:      getFloat64(posMap, "q"),
			AvgPrice:      getFloat64(posMap, "bal_price_a"),
			CurrentPrice:  getFloat64(posMap, "mkt_price"),
			ClosePrice:    getFloat64(posMap, "close_price"),
			UnrealizedPnL: getFloat64(posMap, "profit_close"),
			Currency:      getString(posMap, "curr"),
		})
	}

	return positions, nil
}

// getString safely extracts a string value from a map
func getString(m map[string]interface{}, key string) string {
	if val, exists := m[key]; exists && val != nil {
		if str, ok := val.(string); ok {
			return str
		}
		return fmt.Sprintf("%v", val)
	}
	return ""
}

// getFloat64 safely extracts a float64 value from a map
func getFloat64(m map[string]interface{}, key string) float64 {
	if val, exists := m[key]; exists {
		return getFloat64FromValue(val)
	}
	return 0.0
}

// getFloat64FromValue converts numbers and numeric strings to float64
func getFloat64FromValue(val interface{}) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		// Some numeric fields arrive as strings (e.g. "141.4")
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0.0
}
