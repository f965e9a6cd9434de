package world

import (
	"context"

	"github.com/google/uuid"

	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world/chunk"
	"github.com/GauntletMC/Graphite/internal/world/view"
)

// Connection исходящий поток байтов одного клиента
type Connection interface {
	Write(p []byte) error
	Close(reason error)
}

// ChunkSource поставляет чанки. Возвращённый чанк должен быть в статусе Unloaded.
// Ошибки оборачивают ErrGenerationFailed, ErrStorageUnavailable или ErrChunkNotFound.
type ChunkSource interface {
	LoadChunk(ctx context.Context, pos vec.ChunkPos) (*chunk.Chunk, error)
}

// ChunkSink сохраняет чанк перед выгрузкой из памяти
type ChunkSink interface {
	SaveChunk(ctx context.Context, c *chunk.Chunk) error
}

// PositionStore запоминает последнюю позицию игрока при выходе
type PositionStore interface {
	SavePosition(ctx context.Context, id uuid.UUID, pos vec.Position) error
}

// PositionBatcher пишет позиции многих игроков за один запрос. Хранилище позиций
// может его реализовать, тогда автосохранение идёт одним батчем.
type PositionBatcher interface {
	BatchSave(ctx context.Context, positions map[uuid.UUID]vec.Position) error
}

// UniverseService общие возможности сервера для всех миров
type UniverseService interface {
	Brand() string
	NextEntityID() int32
	RegistryCodec() any
	MaxPlayers() int32
	DimensionNames() []string
}

// WorldService параметры конкретного мира
type WorldService interface {
	Universe() UniverseService
	Name() string
	Dimension() chunk.Dimension
	HashedSeed() int64
	SimulationDistance() int32
}

// PlayerService настройки участника, в том числе параметры обзора
type PlayerService interface {
	Name() string
	UUID() uuid.UUID
	GameMode() uint8
	ViewDistance() int32
	ViewShape() view.Shape
}

// SourceFunc адаптер функции к ChunkSource
type SourceFunc func(ctx context.Context, pos vec.ChunkPos) (*chunk.Chunk, error)

// LoadChunk вызывает f
func (f SourceFunc) LoadChunk(ctx context.Context, pos vec.ChunkPos) (*chunk.Chunk, error) {
	return f(ctx, pos)
}
