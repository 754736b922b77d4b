package snapshots

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// encodeHoldings serializes holdings to msgpack and returns the blob with its checksum
func encodeHoldings(holdings []domain.Holding) ([]byte, string, error) {
	blob, err := msgpack.Marshal(holdings)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode holdings: %w", err)
	}
	return blob, checksum(blob), nil
}

// decodeHoldings verifies the checksum before decoding
func decodeHoldings(blob []byte, sum string) ([]domain.Holding, error) {
	if got := checksum(blob); got != sum {
		return nil, fmt.Errorf("checksum mismatch: stored %s, computed %s", sum, got)
	}

	var holdings []domain.Holding
	if err := msgpack.Unmarshal(blob, &holdings); err != nil {
		return nil, fmt.Errorf("failed to decode holdings: %w", err)
	}
	return holdings, nil
}

func checksum(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
