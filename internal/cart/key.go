package cart

import (
	"strconv"
	"strings"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
)

// DeriveKey builds the line key for a variant and its payload, for example
// "1536" or "1536|attachments:25=3,27=2".
//
// Mapping entries are sorted, but payload fields are visited in payload
// order, so the same fields given in a different order yield a different key.
func DeriveKey(variantID int64, payload domain.Payload) string {
	key := strconv.FormatInt(variantID, 10)
	if len(payload) == 0 {
		return key
	}

	var b strings.Builder
	b.WriteString(key)

	for _, f := range payload {
		if f.Value.Skippable() {
			continue
		}

		switch f.Value.Kind() {
		case domain.KindScalar:
			b.WriteString("|" + f.Name + ":" + f.Value.Text())
		case domain.KindMapping:
			entries := f.Value.Entries()
			parts := make([]string, len(entries))
			for i, e := range entries {
				parts[i] = e.Key + "=" + e.Value
			}
			b.WriteString("|" + f.Name + ":" + strings.Join(parts, ","))
		}
	}

	return b.String()
}
