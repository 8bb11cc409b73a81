package sources

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/radieske/football-signals/internal/shared/config"
	"github.com/radieske/football-signals/internal/shared/httpclient"
	"github.com/radieske/football-signals/internal/signal-service/discovery"
)

// Factory builds the adapter for one profile.
type Factory func(p Profile, deps Deps) discovery.Adapter

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

func init() {
	for id := range builtin {
		Register(id, NewBookmaker)
	}
}

// Register binds a source id to a factory. Later registrations win.
func Register(id string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[id] = f
}

func factoryFor(id string) Factory {
	mu.RLock()
	defer mu.RUnlock()
	if f, ok := factories[id]; ok {
		return f
	}
	return NewBookmaker
}

// NewBookmaker is the default factory.
func NewBookmaker(p Profile, deps Deps) discovery.Adapter {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bookmaker{
		profile:    p,
		client:     httpclient.New(httpclient.Options{Timeout: deps.Timeout, Proxy: p.Proxy}, log),
		log:        log,
		onFallback: deps.OnFallback,
	}
	b.Extractor = discovery.Extractor{
		SourceID:  p.ID,
		Delimiter: p.Delimiter,
		Now:       deps.Now,
	}
	if deps.OnTimeFallback != nil {
		b.Extractor.OnTimeFallback = func(raw string) { deps.OnTimeFallback(p.ID, raw) }
	}
	return b
}

// Build returns one adapter per enabled source. With no configured sources every
// builtin profile is used. Unknown ids need at least a page or api url.
func Build(cfgs []config.SourceConfig, deps Deps) ([]discovery.Adapter, error) {
	if len(cfgs) == 0 {
		ids := make([]string, 0, len(builtin))
		for id := range builtin {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			cfgs = append(cfgs, config.SourceConfig{ID: id})
		}
	}

	adapters := make([]discovery.Adapter, 0, len(cfgs))
	seen := make(map[string]bool, len(cfgs))
	for _, c := range cfgs {
		if c.Disabled {
			continue
		}
		if c.ID == "" {
			return nil, fmt.Errorf("source without id")
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("duplicate source %q", c.ID)
		}
		seen[c.ID] = true

		p := merge(builtin[c.ID], c)
		if p.APIURL == "" && p.PageURL == "" {
			return nil, fmt.Errorf("source %q has neither api_url nor page_url", c.ID)
		}
		if p.PageURL != "" && p.Selectors.Item == "" {
			return nil, fmt.Errorf("source %q has a page_url but no item selector", c.ID)
		}

		adapters = append(adapters, factoryFor(c.ID)(p, deps))
	}
	return adapters, nil
}
