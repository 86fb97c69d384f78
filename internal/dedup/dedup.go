package dedup

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/news-intel/internal/model"
)

// Dedup filters batch and records the accepted items' keys in known.
// Running the same batch twice against the same set yields nothing the
// second time.
func Dedup(ctx context.Context, batch []model.RawItem, known KeySet) ([]model.RawItem, error) {
	fresh, err := Filter(ctx, batch, known)
	if err != nil {
		return nil, err
	}
	if err := Commit(ctx, known, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Filter returns the items of batch whose keys are neither in known nor
// shared with an earlier item of the batch. Items with no usable URL or
// title are dropped. known is not modified; call Commit once an item has
// been handled so a failed item is seen again on the next run.
func Filter(ctx context.Context, batch []model.RawItem, known KeySet) ([]model.RawItem, error) {
	itemKeys := make([][]string, len(batch))
	var all []string
	for i, it := range batch {
		itemKeys[i] = Keys(it)
		all = append(all, itemKeys[i]...)
	}

	seen := make(map[string]bool, len(all))
	if len(all) > 0 {
		present, err := known.Contains(ctx, all)
		if err != nil {
			return nil, eris.Wrap(err, "dedup: lookup known keys")
		}
		for i, k := range all {
			if present[i] {
				seen[k] = true
			}
		}
	}

	var (
		fresh   []model.RawItem
		dropped int
	)
	for i, it := range batch {
		keys := itemKeys[i]
		if len(keys) == 0 || anySeen(keys, seen) {
			dropped++
			continue
		}
		for _, k := range keys {
			seen[k] = true
		}
		fresh = append(fresh, it)
	}

	zap.L().Debug("dedup: batch filtered",
		zap.Int("in", len(batch)),
		zap.Int("fresh", len(fresh)),
		zap.Int("dropped", dropped),
	)
	return fresh, nil
}

func anySeen(keys []string, seen map[string]bool) bool {
	for _, k := range keys {
		if seen[k] {
			return true
		}
	}
	return false
}

// Commit records the keys of handled items in known.
func Commit(ctx context.Context, known KeySet, items []model.RawItem) error {
	var keys []string
	for _, it := range items {
		keys = append(keys, Keys(it)...)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := known.Add(ctx, keys); err != nil {
		return eris.Wrap(err, "dedup: record keys")
	}
	return nil
}

// Seed adds the keys of already persisted articles to known.
func Seed(ctx context.Context, known KeySet, items []model.RawItem) error {
	var keys []string
	for _, it := range items {
		keys = append(keys, Keys(it)...)
	}
	if err := known.Add(ctx, keys); err != nil {
		return eris.Wrap(err, "dedup: seed keys")
	}
	return nil
}
