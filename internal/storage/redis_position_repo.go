package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/GauntletMC/Graphite/internal/logging"
	"github.com/GauntletMC/Graphite/internal/vec"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr          string        // Адрес Redis сервера
	Password      string        // Пароль (пустой если не требуется)
	DB            int           // Номер базы данных
	KeyPrefix     string        // Префикс для ключей
	TTL           time.Duration // Время жизни записей; 0 - без срока
	BatchSize     int           // Размер батча для записи
	FlushInterval time.Duration // Интервал сброса батча
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		KeyPrefix:     "graphite:pos:",
		TTL:           30 * 24 * time.Hour,
		BatchSize:     100,
		FlushInterval: 100 * time.Millisecond,
	}
}

// storedPosition запись в Redis
type storedPosition struct {
	UUID      uuid.UUID    `json:"uuid"`
	Position  vec.Position `json:"position"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// RedisPositionRepo хранит позиции игроков в Redis.
// Запись идёт батчами через pipeline; чтение видит ещё не сброшенный батч.
type RedisPositionRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	batchSize int
	log       *logging.Logger

	batchMu     sync.Mutex
	batchBuffer map[uuid.UUID]storedPosition
	ticker      *time.Ticker
	shutdown    chan struct{}
	wg          sync.WaitGroup
}

// NewRedisPositionRepo подключается к Redis и запускает фоновый сброс батчей
func NewRedisPositionRepo(ctx context.Context, cfg RedisConfig) (*RedisPositionRepo, error) {
	def := DefaultRedisConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	repo := &RedisPositionRepo{
		client:      client,
		keyPrefix:   cfg.KeyPrefix,
		ttl:         cfg.TTL,
		batchSize:   cfg.BatchSize,
		log:         logging.GetStorageLogger(),
		batchBuffer: make(map[uuid.UUID]storedPosition),
		ticker:      time.NewTicker(cfg.FlushInterval),
		shutdown:    make(chan struct{}),
	}

	repo.wg.Add(1)
	go repo.batchFlusher()

	repo.log.Info("Подключено к Redis %s", cfg.Addr)
	return repo, nil
}

func (r *RedisPositionRepo) key(id uuid.UUID) string {
	return r.keyPrefix + id.String()
}

// SavePosition кладёт позицию в батч; полный батч сбрасывается сразу
func (r *RedisPositionRepo) SavePosition(ctx context.Context, id uuid.UUID, pos vec.Position) error {
	pos, err := validatePosition(id, pos)
	if err != nil {
		return err
	}

	r.batchMu.Lock()
	r.batchBuffer[id] = storedPosition{UUID: id, Position: pos, UpdatedAt: time.Now().UTC()}
	if len(r.batchBuffer) < r.batchSize {
		r.batchMu.Unlock()
		return nil
	}
	batch := r.takeBatchLocked()
	r.batchMu.Unlock()

	return r.flushBatch(ctx, batch)
}

// LoadPosition читает позицию из батча или Redis
func (r *RedisPositionRepo) LoadPosition(ctx context.Context, id uuid.UUID) (vec.Position, bool, error) {
	r.batchMu.Lock()
	pending, ok := r.batchBuffer[id]
	r.batchMu.Unlock()
	if ok {
		return pending.Position, true, nil
	}

	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return vec.Position{}, false, nil
	}
	if err != nil {
		return vec.Position{}, false, fmt.Errorf("failed to get position %s: %w", id, err)
	}

	var stored storedPosition
	if err := json.Unmarshal(data, &stored); err != nil {
		return vec.Position{}, false, fmt.Errorf("failed to unmarshal position %s: %w", id, err)
	}
	return stored.Position, true, nil
}

// DeletePosition удаляет позицию из батча и Redis
func (r *RedisPositionRepo) DeletePosition(ctx context.Context, id uuid.UUID) error {
	r.batchMu.Lock()
	_, pending := r.batchBuffer[id]
	delete(r.batchBuffer, id)
	r.batchMu.Unlock()

	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete position %s: %w", id, err)
	}
	if n == 0 && !pending {
		return fmt.Errorf("%s: %w", id, ErrPositionNotFound)
	}
	return nil
}

// BatchSave пишет позиции одним pipeline, минуя буфер
func (r *RedisPositionRepo) BatchSave(ctx context.Context, positions map[uuid.UUID]vec.Position) error {
	batch := make(map[uuid.UUID]storedPosition, len(positions))
	now := time.Now().UTC()
	for id, pos := range positions {
		pos, err := validatePosition(id, pos)
		if err != nil {
			return err
		}
		batch[id] = storedPosition{UUID: id, Position: pos, UpdatedAt: now}
	}
	return r.flushBatch(ctx, batch)
}

// Count число сохранённых позиций (SCAN по префиксу)
func (r *RedisPositionRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count positions: %w", err)
	}
	return count, nil
}

// Close сбрасывает остаток батча и закрывает соединение
func (r *RedisPositionRepo) Close() error {
	close(r.shutdown)
	r.wg.Wait()
	r.ticker.Stop()

	r.batchMu.Lock()
	batch := r.takeBatchLocked()
	r.batchMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.flushBatch(ctx, batch); err != nil {
		r.log.Error("Остаток батча позиций потерян: %v", err)
	}
	return r.client.Close()
}

func (r *RedisPositionRepo) takeBatchLocked() map[uuid.UUID]storedPosition {
	batch := r.batchBuffer
	r.batchBuffer = make(map[uuid.UUID]storedPosition)
	return batch
}

// batchFlusher периодически сбрасывает батч-буфер
func (r *RedisPositionRepo) batchFlusher() {
	defer r.wg.Done()

	for {
		select {
		case <-r.shutdown:
			return
		case <-r.ticker.C:
			r.batchMu.Lock()
			if len(r.batchBuffer) == 0 {
				r.batchMu.Unlock()
				continue
			}
			batch := r.takeBatchLocked()
			r.batchMu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.flushBatch(ctx, batch); err != nil {
				r.log.Error("Failed to flush batch: %v", err)
			}
			cancel()
		}
	}
}

// flushBatch записывает батч позиций в Redis одним pipeline
func (r *RedisPositionRepo) flushBatch(ctx context.Context, batch map[uuid.UUID]storedPosition) error {
	if len(batch) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for id, pos := range batch {
		data, err := json.Marshal(pos)
		if err != nil {
			return fmt.Errorf("failed to marshal position %s: %w", id, err)
		}
		pipe.Set(ctx, r.key(id), data, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}
