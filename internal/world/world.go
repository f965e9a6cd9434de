package world

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/GauntletMC/Graphite/internal/eventbus"
	"github.com/GauntletMC/Graphite/internal/logging"
	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world/chunk"
	"github.com/GauntletMC/Graphite/internal/world/view"
)

const (
	defaultTickRate      = 20
	defaultLoadRetries   = 3
	defaultLoadTimeout   = 10 * time.Second
	defaultRetryInterval = 100 * time.Millisecond
	saveTimeout          = 30 * time.Second
)

// Options необязательные зависимости и параметры мира
type Options struct {
	Sink           ChunkSink         // Куда сохранять выгружаемые чанки
	Positions      PositionStore     // Куда сохранять позицию вышедшего игрока
	Events         eventbus.EventBus // Шина событий мира
	Metrics        *Metrics          // Общие метрики; nil - отдельный реестр
	Logger         *logging.Logger   // nil - логгер компонента world
	TickRate       int               // Тиков в секунду
	UnloadGrace    time.Duration     // Задержка выгрузки чанка без зрителей; 0 - в том же тике
	LoadRetries    uint64            // Повторов после первой неудачной попытки
	LoadTimeout    time.Duration     // Таймаут одной попытки загрузки
	RetryInterval  time.Duration     // Начальный интервал экспоненциального backoff
	ChunkSendRate  float64           // Чанков в секунду на игрока; 0 - без ограничения
	ChunkSendBurst int               // Всплеск для ChunkSendRate
	Autosave       time.Duration     // Период сохранения позиций онлайн-игроков; 0 - только при выходе
}

func (o *Options) applyDefaults() {
	if o.TickRate <= 0 {
		o.TickRate = defaultTickRate
	}
	if o.LoadRetries == 0 {
		o.LoadRetries = defaultLoadRetries
	}
	if o.LoadTimeout <= 0 {
		o.LoadTimeout = defaultLoadTimeout
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = defaultRetryInterval
	}
	if o.ChunkSendRate > 0 && o.ChunkSendBurst <= 0 {
		o.ChunkSendBurst = int(o.ChunkSendRate) + 1
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	if o.Logger == nil {
		o.Logger = logging.GetWorldLogger()
	}
}

// loadResult итог асинхронной загрузки
type loadResult struct {
	pos   vec.ChunkPos
	chunk *chunk.Chunk
	err   error
}

// World владеет чанками, игроками и счётчиками зрителей одного измерения.
// Все изменения выполняются под mu единственным писателем: тиком, входом игрока
// или задачей из Submit.
type World struct {
	svc    WorldService
	dim    chunk.Dimension
	source ChunkSource
	opts   Options
	log    *logging.Logger
	m      worldMetrics
	tracer trace.Tracer
	pub    *publisher // nil без шины событий

	mu       sync.Mutex
	chunks   map[vec.ChunkPos]*chunk.Chunk
	viewers  map[vec.ChunkPos]int
	pinned   map[vec.ChunkPos]int // Счётчик вызовов Preload
	unloadAt map[vec.ChunkPos]time.Time
	players  map[uuid.UUID]*Player
	tickID   uint64
	savedAt  time.Time // Последнее автосохранение позиций

	resMu   sync.Mutex
	results []loadResult

	saveMu sync.Mutex
	saving map[vec.ChunkPos]chan struct{}

	taskMu sync.Mutex
	tasks  []func(*World)

	inflight sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  atomic.Bool
	now      func() time.Time
}

// New создаёт мир. Загрузки чанков идут через source.
func New(svc WorldService, source ChunkSource, opts Options) (*World, error) {
	if source == nil {
		return nil, errors.New("world: nil chunk source")
	}
	dim := svc.Dimension()
	if err := dim.Validate(); err != nil {
		return nil, fmt.Errorf("world %s: %w", svc.Name(), err)
	}
	opts.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	w := &World{
		svc:      svc,
		dim:      dim,
		source:   source,
		opts:     opts,
		log:      opts.Logger,
		m:        opts.Metrics.forWorld(svc.Name()),
		tracer:   otel.Tracer("graphite/world"),
		chunks:   make(map[vec.ChunkPos]*chunk.Chunk),
		viewers:  make(map[vec.ChunkPos]int),
		pinned:   make(map[vec.ChunkPos]int),
		unloadAt: make(map[vec.ChunkPos]time.Time),
		players:  make(map[uuid.UUID]*Player),
		saving:   make(map[vec.ChunkPos]chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
	if opts.Events != nil {
		w.pub = newPublisher(opts.Events, svc.Name(), opts.Logger)
	}
	return w, nil
}

// Name имя мира
func (w *World) Name() string { return w.svc.Name() }

// Service параметры мира
func (w *World) Service() WorldService { return w.svc }

// Dimension измерение мира
func (w *World) Dimension() chunk.Dimension { return w.dim }

// Run крутит тики до отмены ctx, затем останавливает мир
func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(w.opts.TickRate))
	defer ticker.Stop()

	w.log.Info("Мир %s запущен, %d TPS", w.Name(), w.opts.TickRate)
	w.emit(eventbus.TypeWorldStarted, eventbus.WorldEvent{World: w.Name()})

	for {
		select {
		case <-ctx.Done():
			w.Close()
			return nil
		case <-ticker.C:
			w.Tick()
		}
	}
}

// Close отключает игроков, дожидается фоновых загрузок и сохраняет оставшиеся чанки
func (w *World) Close() {
	if w.stopped.Swap(true) {
		return
	}
	w.mu.Lock()
	for _, p := range w.sortedPlayers() {
		w.disconnectLocked(p, ErrWorldStopped)
	}
	w.mu.Unlock()

	w.cancel()
	w.inflight.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.opts.Sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		for pos, c := range w.chunks {
			if c.Status() == chunk.Loading {
				continue
			}
			if err := w.opts.Sink.SaveChunk(ctx, c); err != nil {
				w.log.Error("Не удалось сохранить чанк %s мира %s: %v", pos, w.Name(), err)
			}
		}
	}
	w.log.Info("Мир %s остановлен на тике %d", w.Name(), w.tickID)
	w.emit(eventbus.TypeWorldStopped, eventbus.WorldEvent{World: w.Name()})
	if w.pub != nil {
		w.pub.close()
	}
}

// Submit ставит fn в очередь; fn выполнится в начале следующего тика
func (w *World) Submit(fn func(*World)) {
	w.taskMu.Lock()
	w.tasks = append(w.tasks, fn)
	w.taskMu.Unlock()
}

// Do выполняет fn в следующем тике и ждёт завершения
func (w *World) Do(ctx context.Context, fn func(*World)) error {
	if w.stopped.Load() {
		return ErrWorldStopped
	}
	done := make(chan struct{})
	w.Submit(func(w *World) {
		defer close(done)
		fn(w)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return ErrWorldStopped
	}
}

// Tick один шаг симуляции мира
func (w *World) Tick() {
	start := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	w.tickID++
	w.runTasks()
	w.drainLoads()
	w.syncViews()
	w.broadcastMovement()
	now := w.now()
	w.evict(now)
	w.autosave(now)
	w.flush()

	w.m.tick.Observe(time.Since(start).Seconds())
}

func (w *World) runTasks() {
	w.taskMu.Lock()
	tasks := w.tasks
	w.tasks = nil
	w.taskMu.Unlock()

	for _, fn := range tasks {
		fn(w)
	}
}

// Preload закрепляет квадрат чанков вокруг center и ждёт их загрузки.
// Закреплённые чанки не выгружаются. Каждому успешному Preload соответствует свой Unpin;
// при ошибке Preload сам снимает свои закрепления.
func (w *World) Preload(ctx context.Context, center vec.ChunkPos, radius int32) error {
	region := view.View{Center: center, Radius: radius, Shape: view.Square}.Region()

	w.mu.Lock()
	for _, pos := range region {
		w.pinned[pos]++
		w.acquire(pos)
	}
	w.mu.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		w.mu.Lock()
		w.drainLoads()
		ready := 0
		var failed *vec.ChunkPos
		for _, pos := range region {
			c, ok := w.chunks[pos]
			switch {
			case !ok:
				failed = &pos
			case c.IsLoaded():
				ready++
			}
		}
		if failed != nil {
			w.unpinLocked(region)
		}
		w.mu.Unlock()

		if failed != nil {
			return fmt.Errorf("preload %s: chunk %s: %w", w.Name(), *failed, ErrChunkUnavailable)
		}
		if ready == len(region) {
			w.log.Info("Мир %s: загружено %d чанков вокруг %s", w.Name(), ready, center)
			return nil
		}

		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.unpinLocked(region)
			w.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Unpin снимает закрепление, поставленное Preload. Чанки без зрителей уходят в Unloading.
func (w *World) Unpin(center vec.ChunkPos, radius int32) {
	region := view.View{Center: center, Radius: radius, Shape: view.Square}.Region()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.unpinLocked(region)
}

// unpinLocked снимает по одному закреплению с каждой позиции region.
// Позиции, сброшенные failLoad, пропускаются.
func (w *World) unpinLocked(region []vec.ChunkPos) {
	for _, pos := range region {
		n := w.pinned[pos]
		if n == 0 {
			continue
		}
		if n == 1 {
			delete(w.pinned, pos)
		} else {
			w.pinned[pos] = n - 1
		}
		if w.viewers[pos] > 0 {
			w.release(pos)
		}
	}
}

// Chunk возвращает загруженный чанк
func (w *World) Chunk(pos vec.ChunkPos) (*chunk.Chunk, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.chunks[pos]
	if !ok || c.Status() == chunk.Loading {
		return nil, false
	}
	return c, true
}

// Player ищет игрока по UUID
func (w *World) Player(id uuid.UUID) (*Player, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.players[id]
	return p, ok
}

// Players снимок списка игроков по возрастанию entity id
func (w *World) Players() []*Player {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sortedPlayers()
}

// RemovePlayer отключает игрока с причиной reason
func (w *World) RemovePlayer(p *Player, reason error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disconnectLocked(p, reason)
}

// Stats сводка состояния мира
type Stats struct {
	Name    string `json:"name"`
	Tick    uint64 `json:"tick"`
	Chunks  int    `json:"chunks"`
	Loaded  int    `json:"loaded"`
	Loading int    `json:"loading"`
	Pinned  int    `json:"pinned"`
	Players int    `json:"players"`
}

// Stats снимает сводку под блокировкой мира
func (w *World) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Stats{Name: w.Name(), Tick: w.tickID, Chunks: len(w.chunks), Pinned: len(w.pinned), Players: len(w.players)}
	for _, c := range w.chunks {
		switch c.Status() {
		case chunk.Loaded:
			s.Loaded++
		case chunk.Loading:
			s.Loading++
		}
	}
	return s
}

// acquire увеличивает число зрителей pos и при необходимости запускает загрузку
func (w *World) acquire(pos vec.ChunkPos) {
	w.viewers[pos]++
	if w.viewers[pos] > 1 {
		return
	}
	c, ok := w.chunks[pos]
	if !ok {
		w.startLoad(pos)
		return
	}
	if c.Status() == chunk.Unloading {
		if err := c.Transition(chunk.Loaded); err != nil {
			w.log.Error("Чанк %s: %v", pos, err)
			return
		}
		delete(w.unloadAt, pos)
		w.m.loaded.Inc()
	}
}

// release уменьшает число зрителей; без зрителей чанк переходит в Unloading
func (w *World) release(pos vec.ChunkPos) {
	if n := w.viewers[pos] - 1; n > 0 {
		w.viewers[pos] = n
		return
	}
	delete(w.viewers, pos)

	c, ok := w.chunks[pos]
	if !ok || c.Status() != chunk.Loaded {
		// Loading без зрителей уйдёт в Unloading по завершении загрузки
		return
	}
	w.markUnloading(c)
}

func (w *World) markUnloading(c *chunk.Chunk) {
	if err := c.Transition(chunk.Unloading); err != nil {
		w.log.Error("Чанк %s: %v", c.Pos(), err)
		return
	}
	w.unloadAt[c.Pos()] = w.now().Add(w.opts.UnloadGrace)
	w.m.loaded.Dec()
}

// evict выгружает чанки, чей срок в Unloading истёк
func (w *World) evict(now time.Time) {
	for pos, at := range w.unloadAt {
		if now.Before(at) {
			continue
		}
		delete(w.unloadAt, pos)

		c, ok := w.chunks[pos]
		if !ok || c.Status() != chunk.Unloading || w.viewers[pos] > 0 {
			continue
		}
		if err := c.Transition(chunk.Unloaded); err != nil {
			w.log.Error("Чанк %s: %v", pos, err)
			continue
		}
		delete(w.chunks, pos)
		w.m.evicted.Inc()
		w.log.Trace("Чанк %s выгружен из мира %s", pos, w.Name())
		w.emit(eventbus.TypeChunkEvicted, eventbus.ChunkEvent{World: w.Name(), X: pos.X, Z: pos.Z})

		if w.opts.Sink != nil {
			w.save(c)
		}
	}
}

// save сохраняет чанк в фоне; загрузка того же чанка дождётся окончания записи
func (w *World) save(c *chunk.Chunk) {
	pos := c.Pos()
	done := make(chan struct{})
	w.saveMu.Lock()
	w.saving[pos] = done
	w.saveMu.Unlock()

	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		defer func() {
			w.saveMu.Lock()
			if w.saving[pos] == done {
				delete(w.saving, pos)
			}
			w.saveMu.Unlock()
			close(done)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := w.opts.Sink.SaveChunk(ctx, c); err != nil {
			w.log.Error("Не удалось сохранить чанк %s мира %s: %v", pos, w.Name(), err)
		}
	}()
}

// syncViews считает разницы обзоров параллельно и применяет их по очереди
func (w *World) syncViews() {
	players := w.sortedPlayers()
	if len(players) == 0 {
		return
	}

	type update struct {
		next view.View
		diff view.Result
	}
	updates := make([]update, len(players))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range players {
		g.Go(func() error {
			next := p.desiredView()
			updates[i] = update{next: next, diff: view.Diff(p.view, next)}
			return nil
		})
	}
	_ = g.Wait()

	for i, p := range players {
		w.applyView(p, updates[i].next, updates[i].diff)
	}
}

func (w *World) applyView(p *Player, next view.View, d view.Result) {
	if p.removed {
		return
	}
	prev := p.view
	if prev == nil || prev.Center != next.Center {
		w.writeOrDrop(p, p.writeCenter(next.Center))
	}
	if prev != nil && prev.Radius != next.Radius {
		w.writeOrDrop(p, p.writeRenderDistance(next.Radius))
	}
	if p.removed {
		return
	}

	for _, pos := range d.ToUnload {
		st, ok := p.tracked[pos]
		if !ok {
			continue
		}
		delete(p.tracked, pos)
		if st == chunkSent {
			w.writeOrDrop(p, p.writeUnload(pos))
		}
		if p.removed {
			// disconnectLocked уже освободил все отслеживаемые чанки
			return
		}
		w.release(pos)
	}
	for _, pos := range d.ToLoad {
		if _, ok := p.tracked[pos]; ok {
			continue
		}
		p.tracked[pos] = chunkPending
		w.acquire(pos)
	}
	p.view = &next

	w.sendPending(p)
}

// sendPending отправляет загруженные ожидающие чанки, ближайшие первыми
func (w *World) sendPending(p *Player) {
	if p.removed {
		return
	}
	var ready []vec.ChunkPos
	for pos, st := range p.tracked {
		if st != chunkPending {
			continue
		}
		if c, ok := w.chunks[pos]; ok && c.IsLoaded() {
			ready = append(ready, pos)
		}
	}
	if len(ready) == 0 {
		return
	}
	view.SortClosestFirst(ready, p.view.Center)

	for _, pos := range ready {
		if p.limiter != nil && !p.limiter.Allow() {
			return
		}
		if err := p.writeChunk(w.chunks[pos]); err != nil {
			w.log.Error("Чанк %s для %s: %v", pos, p.Name(), err)
			continue
		}
		p.tracked[pos] = chunkSent
		w.m.sent.Inc()
	}
}

// broadcastMovement рассылает смещения и повороты игроков остальным
func (w *World) broadcastMovement() {
	players := w.sortedPlayers()
	for _, p := range players {
		cur, onGround := p.snapshot()
		if cur == p.lastBroadcast {
			continue
		}
		moved := false
		others := 0
		for _, q := range players {
			if q == p || q.removed {
				continue
			}
			others++
			sent, err := p.writeMovement(q, cur, onGround)
			if err != nil {
				w.log.Error("Движение %s для %s: %v", p.Name(), q.Name(), err)
				continue
			}
			moved = moved || sent
		}
		// Изменения меньше точности протокола копятся до следующего тика
		if moved || others == 0 {
			p.lastBroadcast = cur
		}
	}
}

// flush отправляет накопленный за тик буфер каждого игрока одной записью
func (w *World) flush() {
	for _, p := range w.sortedPlayers() {
		if p.buf.Len() == 0 {
			continue
		}
		logging.LogPacket(w.log, p.Name(), p.buf.Packets(), p.buf.Bytes())
		err := p.conn.Write(p.buf.Bytes())
		p.buf.Reset()
		if err != nil {
			w.disconnectLocked(p, fmt.Errorf("write to %s: %w", p.Name(), err))
		}
	}
}

// writeOrDrop отключает игрока, если пакет не закодировался
func (w *World) writeOrDrop(p *Player, err error) {
	if err != nil {
		w.disconnectLocked(p, fmt.Errorf("encode for %s: %w", p.Name(), err))
	}
}

// disconnectLocked снимает игрока с мира: освобождает чанки, прячет его у остальных,
// закрывает соединение. Повторный вызов ничего не делает.
func (w *World) disconnectLocked(p *Player, reason error) {
	if p.removed {
		return
	}
	p.removed = true
	delete(w.players, p.UUID())

	for pos := range p.tracked {
		w.release(pos)
	}
	p.tracked = nil
	p.buf.Reset()

	for _, q := range w.players {
		if err := p.writeDespawn(q); err != nil {
			w.log.Error("Удаление %s у %s: %v", p.Name(), q.Name(), err)
		}
	}

	p.conn.Close(reason)
	w.m.players.Dec()
	w.log.Info("Игрок %s покинул мир %s: %v", p.Name(), w.Name(), reason)

	reasonText := ""
	if reason != nil {
		reasonText = reason.Error()
	}
	w.emit(eventbus.TypePlayerLeft, eventbus.PlayerEvent{
		World: w.Name(), UUID: p.UUID(), Name: p.Name(), EntityID: p.entityID, Reason: reasonText,
	})

	if w.opts.Positions != nil {
		pos, _ := p.snapshot()
		w.inflight.Add(1)
		go func() {
			defer w.inflight.Done()
			ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			defer cancel()
			if err := w.opts.Positions.SavePosition(ctx, p.UUID(), pos); err != nil {
				w.log.Warn("Позиция %s не сохранена: %v", p.Name(), err)
			}
		}()
	}
}

// autosave раз в Options.Autosave отправляет позиции всех игроков в хранилище
func (w *World) autosave(now time.Time) {
	if w.opts.Autosave <= 0 || w.opts.Positions == nil || len(w.players) == 0 {
		return
	}
	if w.savedAt.IsZero() {
		w.savedAt = now
		return
	}
	if now.Sub(w.savedAt) < w.opts.Autosave {
		return
	}
	w.savedAt = now

	batch := make(map[uuid.UUID]vec.Position, len(w.players))
	for id, p := range w.players {
		batch[id], _ = p.snapshot()
	}

	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()

		if b, ok := w.opts.Positions.(PositionBatcher); ok {
			if err := b.BatchSave(ctx, batch); err != nil {
				w.log.Warn("Автосохранение %d позиций мира %s: %v", len(batch), w.Name(), err)
			}
			return
		}
		for id, pos := range batch {
			if err := w.opts.Positions.SavePosition(ctx, id, pos); err != nil {
				w.log.Warn("Автосохранение позиции %s: %v", id, err)
			}
		}
	}()
	w.log.Debug("Автосохранение: %d позиций мира %s", len(batch), w.Name())
}

func (w *World) sortedPlayers() []*Player {
	out := make([]*Player, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].entityID < out[j].entityID })
	return out
}

// emit ставит событие в очередь публикации, не блокируя тик
func (w *World) emit(eventType string, payload any) {
	if w.pub != nil {
		w.pub.emit(eventType, payload)
	}
}
