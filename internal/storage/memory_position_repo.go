package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/GauntletMC/Graphite/internal/vec"
)

// MemoryPositionRepo реализует PositionRepo в памяти.
// Используется, когда Redis и MySQL не настроены, и в тестах.
// Данные теряются при перезапуске сервера.
type MemoryPositionRepo struct {
	mu   sync.RWMutex
	data map[uuid.UUID]vec.Position
}

// NewMemoryPositionRepo создает новый репозиторий позиций в памяти
func NewMemoryPositionRepo() *MemoryPositionRepo {
	return &MemoryPositionRepo{
		data: make(map[uuid.UUID]vec.Position),
	}
}

// SavePosition сохраняет позицию игрока в памяти
func (r *MemoryPositionRepo) SavePosition(ctx context.Context, id uuid.UUID, pos vec.Position) error {
	pos, err := validatePosition(id, pos)
	if err != nil {
		return err
	}
	if err := checkCtx(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[id] = pos
	return nil
}

// LoadPosition загружает позицию игрока из памяти
func (r *MemoryPositionRepo) LoadPosition(ctx context.Context, id uuid.UUID) (vec.Position, bool, error) {
	if err := checkCtx(ctx); err != nil {
		return vec.Position{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, exists := r.data[id]
	return pos, exists, nil
}

// DeletePosition удаляет сохраненную позицию игрока
func (r *MemoryPositionRepo) DeletePosition(ctx context.Context, id uuid.UUID) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[id]; !exists {
		return fmt.Errorf("%s: %w", id, ErrPositionNotFound)
	}
	delete(r.data, id)
	return nil
}

// BatchSave сохраняет позиции пачкой: либо все, либо ни одной
func (r *MemoryPositionRepo) BatchSave(ctx context.Context, positions map[uuid.UUID]vec.Position) error {
	if len(positions) == 0 {
		return nil
	}
	if err := checkCtx(ctx); err != nil {
		return err
	}

	valid := make(map[uuid.UUID]vec.Position, len(positions))
	for id, pos := range positions {
		pos, err := validatePosition(id, pos)
		if err != nil {
			return err
		}
		valid[id] = pos
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, pos := range valid {
		r.data[id] = pos
	}
	return nil
}

// Count возвращает количество сохраненных позиций
func (r *MemoryPositionRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Close ничего не делает
func (r *MemoryPositionRepo) Close() error { return nil }
