package tagging

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
)

var dummyVocabulary = []string{
	"animal", "apple", "architecture", "autumn", "banana", "beach", "bird",
	"birthday", "boat", "bridge", "building", "cake", "car", "cat",
	"celebration", "city", "cloud", "dog", "drink", "flower", "food",
	"forest", "fruit", "glass", "grapes", "hill", "lake", "lemon", "mango",
	"metal", "mountain", "nature", "night", "ocean", "orange", "party",
	"people", "plant", "portrait", "red", "river", "road", "rose", "sand",
	"sea", "sky", "snow", "spring", "street", "summer", "sunset", "town",
	"tree", "vehicle", "water", "winter", "wood",
}

// Dummy returns 5 to 25 random labels from a fixed vocabulary, for
// offline development. Labels are deduplicated, sorted and scored 1.
type Dummy struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewDummy creates a dummy provider. The same seed yields the same labels.
func NewDummy(seed uint64) *Dummy {
	return &Dummy{rnd: rand.New(rand.NewPCG(seed, seed))}
}

func (d *Dummy) Tag(ctx context.Context, data []byte, mimeType string) ([]Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	n := 5 + d.rnd.IntN(21)
	picked := make([]string, 0, n)
	for i := 0; i < n; i++ {
		picked = append(picked, dummyVocabulary[d.rnd.IntN(len(dummyVocabulary))])
	}
	d.mu.Unlock()

	slices.Sort(picked)
	picked = slices.Compact(picked)

	labels := make([]Label, 0, len(picked))
	for _, p := range picked {
		labels = append(labels, Label{Description: p, Score: 1})
	}
	return labels, nil
}
