package backend

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Inventory used by tests and by the backend
// equivalence checks. It applies the same keying rules as the database
// implementation.
type Memory struct {
	mu       sync.RWMutex
	assets   map[string]AssetRecord
	products map[string]ProductRecord
}

var _ Inventory = (*Memory)(nil)

// NewMemory returns an empty in-memory inventory.
func NewMemory() *Memory {
	return &Memory{
		assets:   make(map[string]AssetRecord),
		products: make(map[string]ProductRecord),
	}
}

func dateKey(d time.Time) string { return d.Format("2006-01-02") }

func assetKey(rec AssetRecord) string {
	return rec.AssetType + "|" + rec.Tile + "|" + dateKey(rec.Date)
}

func productKey(rec ProductRecord) string {
	return rec.Product + "|" + rec.Sensor + "|" + rec.Tile + "|" + dateKey(rec.Date)
}

func (m *Memory) ListTiles(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	for _, rec := range m.assets {
		seen[rec.Tile] = true
	}
	for _, rec := range m.products {
		seen[rec.Tile] = true
	}
	tiles := make([]string, 0, len(seen))
	for tile := range seen {
		tiles = append(tiles, tile)
	}
	sort.Strings(tiles)
	return tiles, nil
}

func (m *Memory) ListDates(ctx context.Context, tile string) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]time.Time)
	for _, rec := range m.assets {
		if rec.Tile == tile {
			seen[dateKey(rec.Date)] = rec.Date
		}
	}
	for _, rec := range m.products {
		if rec.Tile == tile {
			seen[dateKey(rec.Date)] = rec.Date
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (m *Memory) AssetSearch(ctx context.Context, c SearchCriteria) ([]AssetRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AssetRecord
	for _, rec := range m.assets {
		if c.AssetType != "" && rec.AssetType != c.AssetType {
			continue
		}
		if c.Sensor != "" && rec.Sensor != c.Sensor {
			continue
		}
		if !c.matchTile(rec.Tile) || !c.matchDate(rec.Date) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) ProductSearch(ctx context.Context, c SearchCriteria) ([]ProductRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ProductRecord
	for _, rec := range m.products {
		if c.Product != "" && rec.Product != c.Product {
			continue
		}
		if c.Sensor != "" && rec.Sensor != c.Sensor {
			continue
		}
		if !c.matchTile(rec.Tile) || !c.matchDate(rec.Date) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) UpdateOrAddAsset(ctx context.Context, rec AssetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[assetKey(rec)] = rec
	return nil
}

func (m *Memory) UpdateOrAddProduct(ctx context.Context, rec ProductRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[productKey(rec)] = rec
	return nil
}

func (m *Memory) DeleteProduct(ctx context.Context, product, tile string, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rec := range m.products {
		if rec.Product == product && rec.Tile == tile && rec.Date.Equal(date) {
			delete(m.products, key)
		}
	}
	return nil
}
