package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Типы событий мира
const (
	TypePlayerJoined = "PlayerJoined"
	TypePlayerLeft   = "PlayerLeft"
	TypeChunkFailed  = "ChunkFailed"
	TypeChunkEvicted = "ChunkEvicted"
	TypeWorldStarted = "WorldStarted"
	TypeWorldStopped = "WorldStopped"
)

// SubjectPrefix корень subject'ов JetStream: graphite.<мир>.<тип>
const SubjectPrefix = "graphite"

// PlayerEvent полезная нагрузка PlayerJoined/PlayerLeft
type PlayerEvent struct {
	World    string    `json:"world"`
	UUID     uuid.UUID `json:"uuid"`
	Name     string    `json:"name"`
	EntityID int32     `json:"entity_id"`
	Reason   string    `json:"reason,omitempty"`
}

// ChunkEvent полезная нагрузка событий чанков
type ChunkEvent struct {
	World string `json:"world"`
	X     int32  `json:"x"`
	Z     int32  `json:"z"`
	Error string `json:"error,omitempty"`
}

// WorldEvent полезная нагрузка WorldStarted/WorldStopped
type WorldEvent struct {
	World string `json:"world"`
}

// PriorityOf вытеснение чанков идёт сотнями за тик, его можно терять
func PriorityOf(eventType string) Priority {
	if eventType == TypeChunkEvicted {
		return PriorityLow
	}
	return PriorityHigh
}

// NewEnvelope упаковывает payload события мира world в JSON-конверт
func NewEnvelope(world, eventType string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    "world/" + world,
		World:     world,
		EventType: eventType,
		Version:   1,
		Priority:  PriorityOf(eventType),
		Payload:   data,
	}, nil
}

// Decode разбирает payload конверта в v
func (e *Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.EventType, err)
	}
	return nil
}

// Emit собирает конверт и публикует его. Шина nil допустима.
func Emit(ctx context.Context, bus EventBus, world, eventType string, payload any) error {
	if bus == nil {
		return nil
	}
	ev, err := NewEnvelope(world, eventType, payload)
	if err != nil {
		return err
	}
	return bus.Publish(ctx, ev)
}

var subjectEscaper = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// Subject subject события; пустые world или eventType заменяются на *
func Subject(world, eventType string) string {
	w, t := "*", "*"
	if world != "" {
		w = subjectEscaper.Replace(world)
	}
	if eventType != "" {
		t = eventType
	}
	return SubjectPrefix + "." + w + "." + t
}

// SubjectFor самый узкий subject, покрывающий фильтр; остальное отсекает Filter.Match
func SubjectFor(f Filter) string {
	var world, eventType string
	if len(f.Worlds) == 1 {
		world = f.Worlds[0]
	}
	if len(f.Types) == 1 {
		eventType = f.Types[0]
	}
	return Subject(world, eventType)
}
