package world

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Universe набор миров одного сервера и общие для них параметры
type Universe struct {
	brand      string
	maxPlayers int32
	codec      any

	nextEntityID atomic.Int32

	mu     sync.RWMutex
	worlds map[string]*World
}

// NewUniverse создаёт пустую вселенную. codec - кодек реестров для Join Game.
func NewUniverse(brand string, maxPlayers int32, codec any) *Universe {
	return &Universe{
		brand:      brand,
		maxPlayers: maxPlayers,
		codec:      codec,
		worlds:     make(map[string]*World),
	}
}

// Brand имя сервера для minecraft:brand
func (u *Universe) Brand() string { return u.brand }

// MaxPlayers значение для списка игроков клиента
func (u *Universe) MaxPlayers() int32 { return u.maxPlayers }

// RegistryCodec кодек реестров
func (u *Universe) RegistryCodec() any { return u.codec }

// NextEntityID выдаёт уникальный id сущности, начиная с 1
func (u *Universe) NextEntityID() int32 { return u.nextEntityID.Add(1) }

// DimensionNames имена измерений всех миров, без повторов
func (u *Universe) DimensionNames() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()

	seen := make(map[string]bool, len(u.worlds))
	var names []string
	for _, w := range u.worlds {
		if n := w.Dimension().Name; !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// AddWorld регистрирует мир
func (u *Universe) AddWorld(w *World) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.worlds[w.Name()]; ok {
		return fmt.Errorf("world %q already registered", w.Name())
	}
	u.worlds[w.Name()] = w
	return nil
}

// World ищет мир по имени
func (u *Universe) World(name string) (*World, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	w, ok := u.worlds[name]
	return w, ok
}

// Worlds миры по алфавиту
func (u *Universe) Worlds() []*World {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]*World, 0, len(u.worlds))
	for _, w := range u.worlds {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Run запускает тики всех миров и ждёт их остановки
func (u *Universe) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range u.Worlds() {
		g.Go(func() error { return w.Run(ctx) })
	}
	return g.Wait()
}
