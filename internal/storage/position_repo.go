package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/GauntletMC/Graphite/internal/vec"
)

// ErrPositionNotFound позиция игрока не сохранялась
var ErrPositionNotFound = errors.New("position not found")

// PositionRepo хранит последнюю позицию игрока между сессиями.
// Ключ - UUID профиля, а не id сущности, который меняется при каждом входе.
type PositionRepo interface {
	// SavePosition сохраняет позицию игрока
	SavePosition(ctx context.Context, id uuid.UUID, pos vec.Position) error

	// LoadPosition загружает позицию; false, если игрок заходит впервые
	LoadPosition(ctx context.Context, id uuid.UUID) (vec.Position, bool, error)

	// DeletePosition удаляет позицию (сброс точки входа)
	DeletePosition(ctx context.Context, id uuid.UUID) error

	// BatchSave сохраняет позиции нескольких игроков (автосохранение)
	BatchSave(ctx context.Context, positions map[uuid.UUID]vec.Position) error

	// Close освобождает соединения
	Close() error
}

// validatePosition проверяет запись перед сохранением и нормализует поворот
func validatePosition(id uuid.UUID, pos vec.Position) (vec.Position, error) {
	if id == uuid.Nil {
		return pos, errors.New("недействительный UUID игрока")
	}
	if err := pos.Coord.Validate(); err != nil {
		return pos, fmt.Errorf("позиция %s: %w", id, err)
	}
	rot, err := pos.Rot.Normalize()
	if err != nil {
		return pos, fmt.Errorf("позиция %s: %w", id, err)
	}
	pos.Rot = rot
	return pos, nil
}

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
