package words

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultCategory is used for unknown or empty category names.
const DefaultCategory = "animals"

var builtinCategories = map[string][]string{
	"animals": {
		"lion", "tiger", "bear", "elephant", "giraffe",
		"zebra", "monkey", "dog", "cat", "fish",
		"whale", "snake", "rabbit", "bird", "spider",
	},
	"food": {
		"pizza", "burger", "sushi", "pasta", "apple",
		"banana", "bread", "cheese", "cake", "icecream",
		"carrot", "broccoli", "chicken", "rice", "soup",
	},
	"objects": {
		"chair", "table", "book", "phone", "computer",
		"bottle", "shoe", "hat", "car", "bicycle",
		"door", "window", "lamp", "mirror", "key",
	},
	"actions": {
		"running", "jumping", "sleeping", "eating", "reading",
		"singing", "dancing", "swimming", "writing", "driving",
	},
	"places": {
		"mountain", "beach", "city", "forest", "desert",
		"island", "school", "hospital", "park", "store",
	},
	"expressions": {
		"break a leg", "piece of cake", "raining cats and dogs",
		"bite the bullet", "hit the road", "butterflies in stomach",
	},
}

// Pool hands out candidate words per category. It holds no per-session
// state: callers pass the words already used in their game.
type Pool struct {
	categories      map[string][]string
	defaultCategory string

	randLock sync.Mutex
	rand     *rand.Rand
}

type NewPoolOptions struct {
	// Categories overrides the built-in word lists when non-empty.
	Categories      map[string][]string
	DefaultCategory string
	Seed            int64
}

// NewPool creates a word pool. A zero Seed seeds from the clock.
func NewPool(opts NewPoolOptions) *Pool {
	categories := opts.Categories
	if len(categories) == 0 {
		categories = builtinCategories
	}
	defaultCategory := opts.DefaultCategory
	if _, ok := categories[defaultCategory]; !ok {
		defaultCategory = DefaultCategory
	}
	if _, ok := categories[defaultCategory]; !ok {
		// custom lists without "animals": fall back to the first name in sorted order
		names := sortedKeys(categories)
		defaultCategory = names[0]
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Pool{
		categories:      categories,
		defaultCategory: defaultCategory,
		rand:            rand.New(rand.NewSource(seed)),
	}
}

// Normalize maps a requested category onto a known one.
func (p *Pool) Normalize(category string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	if _, ok := p.categories[category]; ok {
		return category
	}
	return p.defaultCategory
}

// Categories returns the known category names, sorted.
func (p *Pool) Categories() []string {
	return sortedKeys(p.categories)
}

// Words returns a copy of the full list for a category.
func (p *Pool) Words(category string) []string {
	list := p.categories[p.Normalize(category)]
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// Draw returns up to count words of the category that are not in used, in
// random order. When fewer than count remain the category counts as
// exhausted: the draw is made from the full list and replenished is true, so
// the caller should reset its used words.
func (p *Pool) Draw(category string, used []string, count int) (words []string, replenished bool) {
	if count <= 0 {
		return nil, false
	}

	list := p.categories[p.Normalize(category)]
	usedSet := make(map[string]struct{}, len(used))
	for _, w := range used {
		usedSet[w] = struct{}{}
	}

	available := make([]string, 0, len(list))
	for _, w := range list {
		if _, ok := usedSet[w]; !ok {
			available = append(available, w)
		}
	}

	if len(available) < count {
		available = append(available[:0], list...)
		replenished = true
	}

	p.shuffle(available)
	if len(available) > count {
		available = available[:count]
	}

	return available, replenished
}

func (p *Pool) shuffle(list []string) {
	p.randLock.Lock()
	defer p.randLock.Unlock()
	p.rand.Shuffle(len(list), func(i, j int) {
		list[i], list[j] = list[j], list[i]
	})
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
