package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"

	"github.com/GauntletMC/Graphite/internal/logging"
	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world"
	"github.com/GauntletMC/Graphite/internal/world/chunk"
)

// Префикс кодека перед данными чанка
const (
	codecRaw  byte = 0
	codecZstd byte = 1
)

// ChunkStoreOptions настройки хранилища чанков
type ChunkStoreOptions struct {
	Path        string // Каталог BadgerDB
	InMemory    bool   // Без диска (тесты, временные миры)
	Compression string // "none" или уровень zstd: fastest, default, better, best
}

// ChunkStore хранит сериализованные чанки в BadgerDB.
// Ключ: chunk:<мир>:<x>:<z>, значение: байт кодека + данные.
type ChunkStore struct {
	db  *badger.DB
	log *logging.Logger

	enc *zstd.Encoder // nil - без сжатия
	dec *zstd.Decoder

	closeOnce sync.Once
}

// OpenChunkStore открывает хранилище
func OpenChunkStore(opts ChunkStoreOptions) (*ChunkStore, error) {
	log := logging.GetStorageLogger()

	bopts := badger.DefaultOptions(opts.Path).WithLogger(badgerLogger{log})
	if opts.InMemory {
		bopts = bopts.WithInMemory(true).WithDir("").WithValueDir("")
	} else if opts.Path == "" {
		return nil, fmt.Errorf("chunk store: empty path: %w", world.ErrStorageUnavailable)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", opts.Path, err)
	}

	s := &ChunkStore{db: db, log: log}
	if s.dec, err = zstd.NewReader(nil); err != nil {
		db.Close()
		return nil, err
	}

	compression := strings.ToLower(strings.TrimSpace(opts.Compression))
	if compression == "" {
		compression = "default"
	}
	if compression != "none" {
		ok, level := zstd.EncoderLevelFromString(compression)
		if !ok {
			s.dec.Close()
			db.Close()
			return nil, fmt.Errorf("unknown compression %q", opts.Compression)
		}
		if s.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(level)); err != nil {
			s.dec.Close()
			db.Close()
			return nil, err
		}
	}

	log.Info("Хранилище чанков открыто (путь %q, in-memory %v, сжатие %s)", opts.Path, opts.InMemory, compression)
	return s, nil
}

// Close закрывает базу
func (s *ChunkStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.enc != nil {
			s.enc.Close()
		}
		s.dec.Close()
		err = s.db.Close()
	})
	return err
}

// World возвращает источник и приёмник чанков одного мира
func (s *ChunkStore) World(name string, dim chunk.Dimension) *WorldChunks {
	return &WorldChunks{store: s, name: name, dim: dim}
}

func chunkKey(worldName string, pos vec.ChunkPos) []byte {
	return []byte(fmt.Sprintf("chunk:%s:%d:%d", worldName, pos.X, pos.Z))
}

func (s *ChunkStore) encode(data []byte) []byte {
	if s.enc == nil {
		return append([]byte{codecRaw}, data...)
	}
	return s.enc.EncodeAll(data, []byte{codecZstd})
}

func (s *ChunkStore) decode(value []byte) ([]byte, error) {
	if len(value) == 0 {
		return nil, errors.New("empty value")
	}
	switch value[0] {
	case codecRaw:
		return value[1:], nil
	case codecZstd:
		return s.dec.DecodeAll(value[1:], nil)
	default:
		return nil, fmt.Errorf("unknown codec %d", value[0])
	}
}

// WorldChunks чанки одного мира. Реализует world.ChunkSource и world.ChunkSink.
type WorldChunks struct {
	store *ChunkStore
	name  string
	dim   chunk.Dimension
}

// LoadChunk читает чанк. Отсутствующий ключ даёт world.ErrChunkNotFound,
// сбой базы или повреждённые данные - world.ErrStorageUnavailable.
func (wc *WorldChunks) LoadChunk(ctx context.Context, pos vec.ChunkPos) (*chunk.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []byte
	err := wc.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(wc.name, pos))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s chunk %s: %w", wc.name, pos, world.ErrChunkNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s chunk %s: %w: %w", wc.name, pos, world.ErrStorageUnavailable, err)
	}

	data, err := wc.store.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s chunk %s: %w: decode: %w", wc.name, pos, world.ErrStorageUnavailable, err)
	}
	c, err := chunk.Unmarshal(data, pos, wc.dim)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", wc.name, world.ErrStorageUnavailable, err)
	}
	wc.store.log.Trace("Чанк %s мира %s прочитан (%d байт)", pos, wc.name, len(raw))
	return c, nil
}

// SaveChunk записывает чанк
func (wc *WorldChunks) SaveChunk(ctx context.Context, c *chunk.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Compact()
	data, err := c.MarshalBinary()
	if err != nil {
		return fmt.Errorf("%s chunk %s: marshal: %w", wc.name, c.Pos(), err)
	}
	value := wc.store.encode(data)

	err = wc.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(wc.name, c.Pos()), value)
	})
	if err != nil {
		return fmt.Errorf("%s chunk %s: %w: %w", wc.name, c.Pos(), world.ErrStorageUnavailable, err)
	}
	wc.store.log.Trace("Чанк %s мира %s записан (%d -> %d байт)", c.Pos(), wc.name, len(data), len(value))
	return nil
}

// DeleteChunk удаляет чанк; отсутствие ключа не ошибка
func (wc *WorldChunks) DeleteChunk(ctx context.Context, pos vec.ChunkPos) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := wc.store.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(chunkKey(wc.name, pos))
	})
	if err != nil {
		return fmt.Errorf("%s chunk %s: %w: %w", wc.name, pos, world.ErrStorageUnavailable, err)
	}
	return nil
}

// Count число сохранённых чанков мира
func (wc *WorldChunks) Count() (int, error) {
	prefix := []byte(fmt.Sprintf("chunk:%s:", wc.name))
	count := 0
	err := wc.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// badgerLogger направляет журнал Badger в логгер хранилища
type badgerLogger struct {
	l *logging.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Trace("badger: "+strings.TrimSuffix(format, "\n"), args...)
}
