package world

import "errors"

var (
	// ErrChunkUnavailable чанк нельзя получить: источник исчерпал попытки или чанк ещё не загружен
	ErrChunkUnavailable = errors.New("chunk unavailable")
	// ErrChunkNotFound источник не хранит чанк; цепочка переходит к следующему источнику
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrGenerationFailed ошибка генератора
	ErrGenerationFailed = errors.New("chunk generation failed")
	// ErrStorageUnavailable ошибка хранилища
	ErrStorageUnavailable = errors.New("chunk storage unavailable")
	// ErrJoinAborted вход игрока отменён, игрок не зарегистрирован
	ErrJoinAborted = errors.New("join aborted")
	// ErrWorldStopped мир остановлен и не принимает задачи
	ErrWorldStopped = errors.New("world stopped")
	// ErrPlayerExists игрок с таким UUID уже в мире
	ErrPlayerExists = errors.New("player already in world")
)
