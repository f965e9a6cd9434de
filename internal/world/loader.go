package world

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/GauntletMC/Graphite/internal/eventbus"
	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world/chunk"
)

// Chain опрашивает источники по порядку. ErrChunkNotFound передаёт ход следующему.
type Chain []ChunkSource

// LoadChunk возвращает чанк первого источника, который его знает
func (c Chain) LoadChunk(ctx context.Context, pos vec.ChunkPos) (*chunk.Chunk, error) {
	for _, s := range c {
		ch, err := s.LoadChunk(ctx, pos)
		if errors.Is(err, ErrChunkNotFound) {
			continue
		}
		return ch, err
	}
	return nil, fmt.Errorf("chunk %s: %w", pos, ErrChunkNotFound)
}

// startLoad ставит в карту заглушку в статусе Loading и загружает чанк в фоне.
// Результат забирает drainLoads в одном из следующих тиков.
func (w *World) startLoad(pos vec.ChunkPos) {
	placeholder := chunk.New(pos, w.dim)
	if err := placeholder.Transition(chunk.Loading); err != nil {
		panic(err)
	}
	w.chunks[pos] = placeholder

	w.saveMu.Lock()
	saving := w.saving[pos]
	w.saveMu.Unlock()

	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		if saving != nil {
			select {
			case <-saving:
			case <-w.ctx.Done():
			}
		}

		start := time.Now()
		c, err := w.load(pos)
		w.m.loadDuration.Observe(time.Since(start).Seconds())

		w.resMu.Lock()
		w.results = append(w.results, loadResult{pos: pos, chunk: c, err: err})
		w.resMu.Unlock()
	}()
}

// load вызывает источник с экспоненциальным backoff. ErrChunkNotFound и отмена
// контекста мира не повторяются.
func (w *World) load(pos vec.ChunkPos) (*chunk.Chunk, error) {
	ctx, span := w.tracer.Start(w.ctx, "world.LoadChunk", trace.WithAttributes(
		attribute.String("world", w.Name()),
		attribute.Int("chunk.x", int(pos.X)),
		attribute.Int("chunk.z", int(pos.Z)),
	))
	defer span.End()

	var loaded *chunk.Chunk
	attempts := 0
	op := func() error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, w.opts.LoadTimeout)
		defer cancel()

		c, err := w.source.LoadChunk(actx, pos)
		switch {
		case err == nil && c == nil:
			return backoff.Permanent(fmt.Errorf("source returned no chunk: %w", ErrChunkUnavailable))
		case err == nil && c.Pos() != pos:
			return backoff.Permanent(fmt.Errorf("source returned chunk %s: %w", c.Pos(), ErrChunkUnavailable))
		case err == nil:
			loaded = c
			return nil
		case errors.Is(err, ErrChunkNotFound), ctx.Err() != nil:
			return backoff.Permanent(err)
		default:
			return err
		}
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = w.opts.RetryInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, w.opts.LoadRetries), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, next time.Duration) {
		w.m.loadRetry.Inc()
		w.log.Warn("Загрузка чанка %s мира %s: %v, повтор через %s", pos, w.Name(), err, next)
	})
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("chunk %s after %d attempts: %w", pos, attempts, err)
	}
	return loaded, nil
}

// drainLoads применяет завершённые загрузки
func (w *World) drainLoads() {
	w.resMu.Lock()
	results := w.results
	w.results = nil
	w.resMu.Unlock()

	for _, r := range results {
		placeholder, ok := w.chunks[r.pos]
		if !ok || placeholder.Status() != chunk.Loading {
			continue
		}
		if r.err == nil {
			r.err = r.chunk.Transition(chunk.Loading)
		}
		if r.err != nil {
			w.failLoad(placeholder, r.err)
			continue
		}

		_ = placeholder.Transition(chunk.Unloaded)
		if err := r.chunk.Transition(chunk.Loaded); err != nil {
			w.failLoad(r.chunk, err)
			continue
		}
		w.chunks[r.pos] = r.chunk
		w.m.loaded.Inc()
		w.m.loadOK.Inc()
		w.log.Trace("Чанк %s мира %s загружен", r.pos, w.Name())

		if w.viewers[r.pos] == 0 {
			w.markUnloading(r.chunk)
		}
	}
}

// failLoad убирает чанк, который не удалось загрузить, и отключает ждавших его игроков
func (w *World) failLoad(c *chunk.Chunk, cause error) {
	pos := c.Pos()
	_ = c.Transition(chunk.Unloaded)
	delete(w.chunks, pos)
	delete(w.viewers, pos)
	delete(w.pinned, pos)
	delete(w.unloadAt, pos)
	w.m.loadFailed.Inc()
	w.log.Error("Чанк %s мира %s недоступен: %v", pos, w.Name(), cause)
	w.emit(eventbus.TypeChunkFailed, eventbus.ChunkEvent{World: w.Name(), X: pos.X, Z: pos.Z, Error: cause.Error()})

	reason := fmt.Errorf("chunk %s: %w: %w", pos, ErrChunkUnavailable, cause)
	for _, p := range w.sortedPlayers() {
		if _, waiting := p.tracked[pos]; waiting {
			delete(p.tracked, pos)
			w.disconnectLocked(p, reason)
		}
	}
}
