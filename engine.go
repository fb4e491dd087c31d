package co2bed

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/jonboulle/clockwork"
)

// Config contains the options an Engine is built with.
type Config struct {
	DataDir      string // directory holding the reference files (default: "./data")
	CitiesFile   string
	AirportsFile string
	SeaportsFile string

	CitySchema    Schema
	AirportSchema Schema
	SeaportSchema Schema

	AirportClasses          []string // airport types eligible for air legs
	SeaportClasses          []string // port types eligible for sea legs
	RequireScheduledService bool     // airports must offer scheduled service to be indexed

	RoadDistanceFactor float64 // multiplier applied to great-circle distance for road legs
	CacheSize          int     // resolution LRU size, 0 disables it
	SuggestDistance    int     // max edit distance for "did you mean" hints, 0 disables them
	Workers            int     // concurrent legs per Calculate call

	Logger  *slog.Logger
	Metrics *Metrics
	Clock   clockwork.Clock

	opener func(Kind) (io.ReadCloser, error)
}

// Option is a functional option for configuring an Engine.
type Option func(*Config)

// WithDataDir sets the directory the reference files are read from.
func WithDataDir(dir string) Option {
	return func(c *Config) { c.DataDir = dir }
}

// WithFiles overrides the reference file names inside the data directory.
// Empty names keep the default.
func WithFiles(cities, airports, seaports string) Option {
	return func(c *Config) {
		if cities != "" {
			c.CitiesFile = cities
		}
		if airports != "" {
			c.AirportsFile = airports
		}
		if seaports != "" {
			c.SeaportsFile = seaports
		}
	}
}

// WithSchema sets the column mapping of one reference file.
func WithSchema(kind Kind, s Schema) Option {
	return func(c *Config) {
		switch kind {
		case KindCity:
			c.CitySchema = s
		case KindAirport:
			c.AirportSchema = s
		case KindSeaport:
			c.SeaportSchema = s
		}
	}
}

// WithAirportClasses sets the airport types eligible for air legs.
func WithAirportClasses(classes ...string) Option {
	return func(c *Config) { c.AirportClasses = classes }
}

// WithSeaportClasses sets the port types eligible for sea legs.
func WithSeaportClasses(classes ...string) Option {
	return func(c *Config) { c.SeaportClasses = classes }
}

// WithScheduledServiceRequired controls whether airports without scheduled
// service are dropped at load time.
func WithScheduledServiceRequired(required bool) Option {
	return func(c *Config) { c.RequireScheduledService = required }
}

// WithRoadDistanceFactor sets the multiplier applied to road distances.
func WithRoadDistanceFactor(f float64) Option {
	return func(c *Config) { c.RoadDistanceFactor = f }
}

// WithCacheSize sets the resolution cache size; 0 disables caching.
func WithCacheSize(n int) Option {
	return func(c *Config) { c.CacheSize = n }
}

// WithSuggestDistance sets the edit distance used for "did you mean" hints.
func WithSuggestDistance(n int) Option {
	return func(c *Config) { c.SuggestDistance = n }
}

// WithWorkers sets how many legs Calculate resolves concurrently.
func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics sets the Prometheus collectors to record into.
func WithMetrics(m *Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithClock sets the clock used to time the index build.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Config) { c.Clock = clock }
}

// WithOpener replaces file access: open is called once per kind during Load.
func WithOpener(open func(Kind) (io.ReadCloser, error)) Option {
	return func(c *Config) { c.opener = open }
}

// WithReaders serves the reference data from readers instead of files.
func WithReaders(cities, airports, seaports io.Reader) Option {
	sources := [kindCount]io.Reader{cities, airports, seaports}
	return WithOpener(func(k Kind) (io.ReadCloser, error) {
		return io.NopCloser(sources[k]), nil
	})
}

func defaultConfig() *Config {
	return &Config{
		DataDir:                 "./data",
		CitiesFile:              "geonames-all-cities-with-a-population-1000.csv",
		AirportsFile:            "airports.csv",
		SeaportsFile:            "seaports.csv",
		CitySchema:              DefaultCitySchema(),
		AirportSchema:           DefaultAirportSchema(),
		SeaportSchema:           DefaultSeaportSchema(),
		AirportClasses:          []string{"large_airport", "medium_airport"},
		SeaportClasses:          []string{"commercial"},
		RequireScheduledService: true,
		RoadDistanceFactor:      DefaultRoadDistanceFactor,
		CacheSize:               4096,
		SuggestDistance:         2,
		Workers:                 1,
		Clock:                   clockwork.NewRealClock(),
	}
}

func newConfig(opts ...Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.RoadDistanceFactor <= 0 {
		cfg.RoadDistanceFactor = DefaultRoadDistanceFactor
	}
	if cfg.opener == nil {
		cfg.opener = func(k Kind) (io.ReadCloser, error) {
			return openReferenceFile(cfg.path(k))
		}
	}
	return cfg
}

func (c *Config) path(k Kind) string {
	name := c.CitiesFile
	switch k {
	case KindAirport:
		name = c.AirportsFile
	case KindSeaport:
		name = c.SeaportsFile
	}
	return filepath.Join(c.DataDir, name)
}

func (c *Config) schema(k Kind) Schema {
	switch k {
	case KindAirport:
		return c.AirportSchema
	case KindSeaport:
		return c.SeaportSchema
	}
	return c.CitySchema
}

// airportServiceEligible applies the commercial filter at load time. When
// the file has no scheduled-service column only the type is checked.
func (c *Config) airportServiceEligible(class, scheduled string, hasScheduled bool) bool {
	allowed := false
	for _, a := range c.AirportClasses {
		if normalizeKey(a) == class {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	if c.RequireScheduledService && hasScheduled {
		return scheduled == "yes"
	}
	return true
}

// Engine loads the reference data once and resolves and calculates legs
// against it. Safe for concurrent use.
type Engine struct {
	cfg      *Config
	once     sync.Once
	index    *Index
	resolver *Resolver
	stats    [kindCount]SourceStats
	err      error
}

// New returns an Engine. Nothing is read until the first call that needs
// the index; call Load at startup to fail fast on bad reference data.
//
//	e := co2bed.New(co2bed.WithDataDir("/srv/co2/data"))
//	if _, err := e.Load(); err != nil {
//	    log.Fatal(err)
//	}
//	rec, err := e.Resolve("Berlin,de", co2bed.ModeAir, co2bed.Constraints{InEuropeanUnion: true})
func New(opts ...Option) *Engine {
	return &Engine{cfg: newConfig(opts...)}
}

// Load builds the index on first call and returns it. Concurrent first
// callers wait for the single build; later calls return the same Index, or
// the same error if the build failed.
func (e *Engine) Load() (*Index, error) {
	e.once.Do(e.load)
	return e.index, e.err
}

func (e *Engine) load() {
	start := e.cfg.Clock.Now()
	ix, stats, err := buildIndex(e.cfg)
	if err != nil {
		e.err = fmt.Errorf("loading reference data: %w", err)
		e.cfg.Logger.Error("reference data load failed", "error", err)
		return
	}
	elapsed := e.cfg.Clock.Since(start)
	e.cfg.Metrics.loadDuration(elapsed)
	e.cfg.Logger.Info("index built",
		"cities", ix.Len(KindCity),
		"airports", ix.Len(KindAirport),
		"seaports", ix.Len(KindSeaport),
		"duration", elapsed,
	)
	e.index, e.stats = ix, stats
	e.resolver = newResolver(ix, e.cfg)
}

// Stats returns the per-source load statistics, loading the index if needed.
func (e *Engine) Stats(kind Kind) SourceStats {
	if _, err := e.Load(); err != nil || int(kind) >= kindCount {
		return SourceStats{}
	}
	return e.stats[kind]
}

// Resolve loads the index if needed and resolves raw for mode.
func (e *Engine) Resolve(raw string, mode Mode, c Constraints) (*LocationRecord, error) {
	if _, err := e.Load(); err != nil {
		return nil, err
	}
	return e.resolver.Resolve(raw, mode, c)
}

// Nearest returns the record of kind closest to p with its distance in km.
func (e *Engine) Nearest(kind Kind, p Point) (*LocationRecord, float64, error) {
	ix, err := e.Load()
	if err != nil {
		return nil, 0, err
	}
	rec, d, ok := ix.Nearest(kind, p, nil)
	if !ok {
		return nil, 0, fmt.Errorf("%w: no %s near %.5f,%.5f", ErrNoEligibleFacility, kind, p.Lat, p.Lon)
	}
	return rec, d, nil
}

// DistanceKm is the leg distance between a and b for mode: great-circle,
// scaled by the road distance factor for road legs.
func (e *Engine) DistanceKm(a, b Point, mode Mode) float64 {
	d := GreatCircleDistanceKm(a, b)
	if mode == ModeRoad {
		d *= e.cfg.RoadDistanceFactor
	}
	return d
}

// Singleton pattern for the default Engine.
var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// GetDefaultEngine returns a shared Engine reading from ./data, loading it
// on first call.
func GetDefaultEngine() (*Engine, error) {
	defaultEngineOnce.Do(func() {
		defaultEngine = New()
	})
	_, err := defaultEngine.Load()
	return defaultEngine, err
}
