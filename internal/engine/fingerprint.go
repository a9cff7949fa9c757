package engine

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Fingerprint hashes a tenant and application into a stable cache key.
// encoding/json sorts map keys, so equal inputs always produce equal keys.
func Fingerprint(tenantID string, app *domain.Application) (string, error) {
	body, err := json.Marshal(app)
	if err != nil {
		return "", fmt.Errorf("failed to encode application: %w", err)
	}

	h := xxhash.New()
	_, _ = h.WriteString(tenantID)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(body)
	return strconv.FormatUint(h.Sum64(), 16), nil
}
