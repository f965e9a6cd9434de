package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed публикация в закрытую шину
var ErrClosed = errors.New("eventbus: closed")

// Priority определяет поведение при переполнении очереди подписчика
type Priority uint8

const (
	// PriorityLow событие отбрасывается, если очередь подписчика полна
	PriorityLow Priority = iota
	// PriorityHigh публикация ждёт места в очереди
	PriorityHigh
)

// Envelope конверт события мира
type Envelope struct {
	ID        string          `json:"id"`     // UUID события
	Timestamp time.Time       `json:"ts"`     // Время создания (UTC)
	Source    string          `json:"source"` // world/<имя мира>
	World     string          `json:"world"`
	EventType string          `json:"type"`
	Version   int             `json:"v"` // Версия схемы Payload
	Priority  Priority        `json:"prio"`
	Payload   json.RawMessage `json:"payload"`
}

// Filter отбирает события для подписчика. Пустой список пропускает всё.
type Filter struct {
	Types  []string
	Worlds []string
}

// Match проверяет, проходит ли событие фильтр
func (f Filter) Match(ev *Envelope) bool {
	return (len(f.Types) == 0 || slices.Contains(f.Types, ev.EventType)) &&
		(len(f.Worlds) == 0 || slices.Contains(f.Worlds, ev.World))
}

// Subscription возвращается при подписке
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет события. Для одного подписчика вызовы последовательны.
type Handler func(ctx context.Context, ev *Envelope)

// Stats счётчики шины
type Stats struct {
	Published   uint64
	Consumed    uint64
	Dropped     uint64
	InFlight    int
	Subscribers int
}

// EventBus шина событий мира: in-memory или NATS JetStream
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

// memoryBus держит отдельную очередь на каждого подписчика, поэтому события
// одного мира приходят подписчику в порядке публикации.
type memoryBus struct {
	mu       sync.Mutex
	subs     map[int]*memSub
	nextID   int
	capacity int
	closed   bool

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64
}

type memSub struct {
	bus     *memoryBus
	id      int
	filter  Filter
	handler Handler
	queue   chan *Envelope
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewMemoryBus создаёт шину в памяти; capacity длина очереди каждого подписчика
func NewMemoryBus(capacity int) EventBus {
	if capacity <= 0 {
		capacity = 64
	}
	return &memoryBus{subs: make(map[int]*memSub), capacity: capacity}
}

func (mb *memoryBus) Publish(ctx context.Context, ev *Envelope) error {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return ErrClosed
	}
	targets := make([]*memSub, 0, len(mb.subs))
	for _, s := range mb.subs {
		if s.filter.Match(ev) {
			targets = append(targets, s)
		}
	}
	mb.mu.Unlock()

	mb.published.Add(1)
	for _, s := range targets {
		select {
		case s.queue <- ev:
			continue
		default:
		}
		if ev.Priority == PriorityLow {
			mb.dropped.Add(1)
			continue
		}
		select {
		case s.queue <- ev:
		case <-s.ctx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (mb *memoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return nil, ErrClosed
	}

	cctx, cancel := context.WithCancel(ctx)
	s := &memSub{
		bus:     mb,
		id:      mb.nextID,
		filter:  f,
		handler: h,
		queue:   make(chan *Envelope, mb.capacity),
		ctx:     cctx,
		cancel:  cancel,
	}
	mb.nextID++
	mb.subs[s.id] = s
	go s.run()
	return s, nil
}

func (mb *memoryBus) Metrics() Stats {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	st := Stats{
		Published:   mb.published.Load(),
		Consumed:    mb.consumed.Load(),
		Dropped:     mb.dropped.Load(),
		Subscribers: len(mb.subs),
	}
	for _, s := range mb.subs {
		st.InFlight += len(s.queue)
	}
	return st
}

// Close останавливает всех подписчиков; недоставленные события теряются
func (mb *memoryBus) Close() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return nil
	}
	mb.closed = true
	for id, s := range mb.subs {
		s.cancel()
		delete(mb.subs, id)
	}
	return nil
}

func (s *memSub) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.queue:
			s.handler(s.ctx, ev)
			s.bus.consumed.Add(1)
		}
	}
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.cancel()
}
