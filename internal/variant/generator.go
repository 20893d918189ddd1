package variant

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
)

const (
	titleSeparator = " / "

	// StatePublished is the state given to freshly generated variants.
	StatePublished = 1
)

// Generate returns one candidate per combination of the given option groups
// that is not listed in currentHashes. Groups without options are ignored,
// and no groups at all yields no candidates.
func Generate(productID int64, groups []domain.FeatureGroup, currentHashes []string) []domain.Variant {
	combos := Combinations(groups)
	if len(combos) == 0 {
		return []domain.Variant{}
	}

	skip := make(map[string]struct{}, len(currentHashes)+len(combos))
	for _, h := range currentHashes {
		skip[h] = struct{}{}
	}

	variants := make([]domain.Variant, 0, len(combos))
	for _, combo := range combos {
		sort.SliceStable(combo, func(i, j int) bool {
			return combo[i].Value < combo[j].Value
		})

		values := make([]string, len(combo))
		texts := make([]string, len(combo))
		for i, opt := range combo {
			values[i] = opt.Value
			texts[i] = opt.Text
		}

		hash := Hash(values)
		if _, seen := skip[hash]; seen {
			continue
		}
		skip[hash] = struct{}{}

		variants = append(variants, domain.Variant{
			ProductID: productID,
			Hash:      hash,
			Title:     strings.Join(texts, titleSeparator),
			Subtract:  true,
			State:     StatePublished,
			Options:   values,
		})
	}

	return variants
}

// Combinations is the cartesian product of the non-empty groups, in group
// order. Each combination holds one option per group.
func Combinations(groups []domain.FeatureGroup) [][]domain.Option {
	var result [][]domain.Option
	for _, g := range groups {
		if len(g.Options) == 0 {
			continue
		}
		if result == nil {
			result = make([][]domain.Option, 0, len(g.Options))
			for _, opt := range g.Options {
				result = append(result, []domain.Option{opt})
			}
			continue
		}

		next := make([][]domain.Option, 0, len(result)*len(g.Options))
		for _, prefix := range result {
			for _, opt := range g.Options {
				combo := make([]domain.Option, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				next = append(next, append(combo, opt))
			}
		}
		result = next
	}
	return result
}

// Hash identifies a combination by its ordered option values. The result is
// stable across processes: xxhash64 over each value followed by a zero byte,
// as 16 hex digits.
func Hash(values []string) string {
	d := xxhash.New()
	for _, v := range values {
		_, _ = d.WriteString(v)
		_, _ = d.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
