package seen

import (
	"math"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

var _ Store = (*Memory)(nil)

// Memory keeps the set in an insertion ordered list. It never evicts on its
// own; the bound is applied by Evict.
type Memory struct {
	ids *simplelru.LRU[string, struct{}]
}

func NewMemory() *Memory {
	ids, err := simplelru.NewLRU[string, struct{}](math.MaxInt, nil)
	if err != nil {
		// only returned for a non positive size
		panic(err)
	}
	return &Memory{ids: ids}
}

func (m *Memory) Contains(id string) (bool, error) {
	return m.ids.Contains(id), nil
}

func (m *Memory) Add(id string) error {
	if !m.ids.Contains(id) {
		m.ids.Add(id, struct{}{})
	}
	return nil
}

func (m *Memory) Len() (int, error) { return m.ids.Len(), nil }

func (m *Memory) Evict(max int) (removed int, err error) {
	if max < 0 {
		max = 0
	}
	for m.ids.Len() > max {
		m.ids.RemoveOldest()
		removed++
	}
	return
}

func (m *Memory) Close() error {
	m.ids.Purge()
	return nil
}
