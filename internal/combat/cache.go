package combat

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Defaults applied when a parameter table has no row for a pairing. They are
// memoized on first miss so repeated lookups stay cheap and consistent.
const (
	DefaultOurRatio    = 1.0
	DefaultEnemyRatio  = 1.2
	DefaultDefenseRate = 0.2
)

// ExchangeKey pairs one of our aircraft classes with an enemy class.
type ExchangeKey struct {
	Ours   string
	Theirs string
}

// ExchangeRatio holds the relative air combat strengths of a pairing.
type ExchangeRatio struct {
	Ours   float64
	Theirs float64
}

// ExchangeTable maps class pairings to their exchange ratios.
type ExchangeTable map[ExchangeKey]ExchangeRatio

// DefenseTable maps ground threat classes to their detection rates.
type DefenseTable map[string]float64

// Source loads combat parameter tables from backing storage.
type Source interface {
	Load(ctx context.Context) (ExchangeTable, DefenseTable, error)
}

// Cache serves combat parameters to the simulator. It loads lazily from its
// source, synthesizes defaults for missing pairings, and survives a failed
// load by serving defaults until a reload succeeds.
type Cache struct {
	src Source
	log *zap.Logger

	mu       sync.RWMutex
	loaded   bool
	exchange ExchangeTable
	defense  DefenseTable
}

// NewCache builds a cache over src. A nil src yields defaults for every
// lookup; a nil logger disables logging.
func NewCache(src Source, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		src:      src,
		log:      log,
		exchange: make(ExchangeTable),
		defense:  make(DefenseTable),
	}
}

// EnsureLoaded loads the parameter tables if they have not been loaded yet.
// A load failure is logged and the cache falls back to defaults; it does not
// retry until Reload is called.
func (c *Cache) EnsureLoaded(ctx context.Context) {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return
	}
	c.loadLocked(ctx)
}

// Reload discards every cached entry, including memoized defaults, and loads
// the tables again.
func (c *Cache) Reload(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchange = make(ExchangeTable)
	c.defense = make(DefenseTable)
	c.loadLocked(ctx)
}

func (c *Cache) loadLocked(ctx context.Context) {
	c.loaded = true
	if c.src == nil {
		return
	}
	exchange, defense, err := c.src.Load(ctx)
	if err != nil {
		c.log.Error("combat parameter load failed, serving defaults", zap.Error(err))
		return
	}
	for key, ratio := range exchange {
		c.exchange[key] = ratio
	}
	for class, rate := range defense {
		c.defense[class] = rate
	}
	c.log.Info("combat parameters loaded",
		zap.Int("exchange_ratios", len(exchange)),
		zap.Int("defense_rates", len(defense)))
}

// ExchangeRatio returns the air exchange ratio for one of our classes against
// an enemy class. Unknown pairings get the default ratio, which is memoized
// so later table loads cannot change an answer already given.
func (c *Cache) ExchangeRatio(ours, theirs string) (float64, float64) {
	c.EnsureLoaded(context.Background())
	key := ExchangeKey{Ours: ours, Theirs: theirs}

	c.mu.RLock()
	ratio, ok := c.exchange[key]
	c.mu.RUnlock()
	if ok {
		return ratio.Ours, ratio.Theirs
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ratio, ok = c.exchange[key]; ok {
		return ratio.Ours, ratio.Theirs
	}
	ratio = ExchangeRatio{Ours: DefaultOurRatio, Theirs: DefaultEnemyRatio}
	c.exchange[key] = ratio
	c.log.Debug("no exchange ratio configured, using default",
		zap.String("ours", ours), zap.String("theirs", theirs))
	return ratio.Ours, ratio.Theirs
}

// DefenseRate returns the detection rate of a ground threat class. Unknown
// classes get the memoized default rate.
func (c *Cache) DefenseRate(class string) float64 {
	c.EnsureLoaded(context.Background())

	c.mu.RLock()
	rate, ok := c.defense[class]
	c.mu.RUnlock()
	if ok {
		return rate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if rate, ok = c.defense[class]; ok {
		return rate
	}
	c.defense[class] = DefaultDefenseRate
	c.log.Debug("no defense rate configured, using default", zap.String("class", class))
	return DefaultDefenseRate
}

// Sizes returns the current table sizes, memoized defaults included.
func (c *Cache) Sizes() (exchange, defense int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.exchange), len(c.defense)
}
