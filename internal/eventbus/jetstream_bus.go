package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats.go"
)

// JetStreamBus EventBus поверх NATS JetStream. События пишутся в стрим
// с subject'ами graphite.<мир>.<тип> и хранятся retention.
type JetStreamBus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	stream string

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64
	subs      atomic.Int64
}

// NewJetStreamBus подключается к NATS и создаёт стрим, если его нет
func NewJetStreamBus(url, stream string, retention time.Duration) (*JetStreamBus, error) {
	if stream == "" {
		stream = "GRAPHITE"
	}

	nc, err := nats.Connect(url, nats.Name("graphite"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if _, err := js.StreamInfo(stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      stream,
			Subjects:  []string{SubjectPrefix + ".>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    retention,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("add stream %s: %w", stream, err)
		}
	}

	return &JetStreamBus{nc: nc, js: js, stream: stream}, nil
}

// Publish пишет конверт в JSON. Id события служит ключом дедупликации JetStream.
func (jb *JetStreamBus) Publish(ctx context.Context, ev *Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = jb.js.Publish(Subject(ev.World, ev.EventType), data, nats.Context(ctx), nats.MsgId(ev.ID))
	if err != nil {
		if ev.Priority == PriorityLow {
			jb.dropped.Add(1)
			return nil
		}
		return fmt.Errorf("publish %s: %w", ev.EventType, err)
	}
	jb.published.Add(1)
	return nil
}

// Subscribe создаёт эфемерного consumer'а, получающего только новые события
func (jb *JetStreamBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	sub, err := jb.js.Subscribe(SubjectFor(f), func(msg *nats.Msg) {
		var ev Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			jb.dropped.Add(1)
			_ = msg.Term()
			return
		}
		if f.Match(&ev) {
			h(ctx, &ev)
			jb.consumed.Add(1)
		}
		_ = msg.Ack()
	},
		nats.BindStream(jb.stream),
		nats.DeliverNew(),
		nats.ManualAck(),
		nats.AckWait(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", SubjectFor(f), err)
	}
	jb.subs.Add(1)
	return &jetSub{bus: jb, s: sub}, nil
}

type jetSub struct {
	bus *JetStreamBus
	s   *nats.Subscription
}

func (j *jetSub) Unsubscribe() {
	if err := j.s.Unsubscribe(); err == nil {
		j.bus.subs.Add(-1)
	}
}

// Close дожидается отправки и закрывает соединение
func (jb *JetStreamBus) Close() error {
	return jb.nc.Drain()
}

// Metrics очередь хранит сам JetStream, поэтому InFlight всегда 0
func (jb *JetStreamBus) Metrics() Stats {
	return Stats{
		Published:   jb.published.Load(),
		Consumed:    jb.consumed.Load(),
		Dropped:     jb.dropped.Load(),
		Subscribers: int(jb.subs.Load()),
	}
}
