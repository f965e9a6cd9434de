package world

import (
	"context"
	"sync"
	"time"

	"github.com/GauntletMC/Graphite/internal/eventbus"
	"github.com/GauntletMC/Graphite/internal/logging"
)

const (
	eventQueueSize      = 256
	eventPublishTimeout = 5 * time.Second
)

// publisher отправляет события мира в шину из одной горутины, сохраняя порядок.
// Тик никогда не ждёт шину: при полной очереди событие теряется.
type publisher struct {
	bus   eventbus.EventBus
	world string
	log   *logging.Logger

	mu     sync.Mutex
	queue  chan *eventbus.Envelope
	closed bool
	done   chan struct{}
}

func newPublisher(bus eventbus.EventBus, world string, log *logging.Logger) *publisher {
	p := &publisher{
		bus:   bus,
		world: world,
		log:   log,
		queue: make(chan *eventbus.Envelope, eventQueueSize),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *publisher) emit(eventType string, payload any) {
	ev, err := eventbus.NewEnvelope(p.world, eventType, payload)
	if err != nil {
		p.log.Error("Событие %s: %v", eventType, err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- ev:
	default:
		p.log.Warn("Очередь событий мира %s переполнена, %s потеряно", p.world, eventType)
	}
}

func (p *publisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), eventPublishTimeout)
		if err := p.bus.Publish(ctx, ev); err != nil {
			p.log.Warn("Событие %s не опубликовано: %v", ev.EventType, err)
		}
		cancel()
	}
}

// close дожидается публикации уже поставленных событий
func (p *publisher) close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
}
