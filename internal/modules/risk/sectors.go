// Package risk scores portfolio structure and flags concentration.
package risk

import (
	"strings"

	"github.com/aristath/sentinel-insights/internal/domain"
)

// SectorOther is used for symbols without a known sector
const SectorOther = "Other"

// sectorMap covers the NSE large caps and common ETFs
var sectorMap = map[string]string{
	// IT Services
	"TCS": "IT Services", "INFY": "IT Services", "HCLTECH": "IT Services", "WIPRO": "IT Services",
	"TECHM": "IT Services", "LTIM": "IT Services", "TATATECH": "IT Services",

	// Banks
	"HDFCBANK": "Banking", "ICICIBANK": "Banking", "KOTAKBANK": "Banking", "AXISBANK": "Banking",
	"INDUSINDBK": "Banking", "CUB": "Banking", "IDFCFIRSTB": "Banking",
	"SBIN": "Banking", "PNB": "Banking", "BANKBARODA": "Banking",

	// Finance and insurance
	"BAJFINANCE": "Finance", "BAJAJFINSV": "Finance", "ARMANFIN": "Finance", "SBICARD": "Finance",
	"JIOFIN": "Finance", "IREDA": "Finance",
	"SBILIFE": "Insurance", "HDFCLIFE": "Insurance",

	// Energy and power
	"RELIANCE": "Energy", "ONGC": "Energy", "BPCL": "Energy", "IOC": "Energy",
	"POWERGRID": "Power", "NTPC": "Power", "ADANIGREEN": "Power",

	// FMCG
	"HINDUNILVR": "FMCG", "ITC": "FMCG", "NESTLEIND": "FMCG", "BRITANNIA": "FMCG",
	"TATACONSUM": "FMCG", "DABUR": "FMCG",

	// Auto
	"MARUTI": "Automobile", "TATAMOTORS": "Automobile", "M&M": "Automobile", "BAJAJ-AUTO": "Automobile",
	"EICHERMOT": "Automobile", "HEROMOTOCO": "Automobile",

	// Metals and mining
	"TATASTEEL": "Metals", "HINDALCO": "Metals", "JSWSTEEL": "Metals", "COALINDIA": "Mining",

	// Infrastructure
	"LT": "Construction", "ULTRACEMCO": "Cement", "ADANIENT": "Diversified",
	"ADANIPORTS": "Infrastructure", "CGPOWER": "Engineering",

	// Pharma
	"SUNPHARMA": "Pharma", "DRREDDY": "Pharma", "CIPLA": "Pharma", "DIVISLAB": "Pharma",

	// Telecom
	"BHARTIARTL": "Telecom", "TATACOMM": "Telecom",

	// Consumer
	"TITAN": "Consumer Durables", "ASIANPAINT": "Paints", "INDIGOPNTS": "Paints",
	"PVRINOX": "Media & Entertainment",

	// ETFs and funds
	"NIFTYBEES": "ETF", "ITBEES": "ETF", "MID150BEES": "ETF", "SENSEXBEES": "ETF",
	"LIQUIDCASE": "Liquid Fund",
}

// SectorFor returns the sector of a symbol. Exchange suffixes such as "-EQ" are ignored.
func SectorFor(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if sector, ok := sectorMap[symbol]; ok {
		return sector
	}
	if i := strings.LastIndex(symbol, "-"); i > 0 {
		if sector, ok := sectorMap[symbol[:i]]; ok {
			return sector
		}
	}
	return SectorOther
}

// Enrich fills in missing sectors from the static map
func Enrich(holdings []domain.Holding) []domain.Holding {
	out := make([]domain.Holding, len(holdings))
	for i, h := range holdings {
		if h.Sector == "" {
			h.Sector = SectorFor(h.Symbol)
		}
		out[i] = h
	}
	return out
}
