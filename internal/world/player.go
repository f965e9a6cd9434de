package world

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/GauntletMC/Graphite/internal/protocol"
	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world/chunk"
	"github.com/GauntletMC/Graphite/internal/world/view"
)

// chunkState состояние чанка в наборе отслеживания игрока
type chunkState uint8

const (
	chunkPending chunkState = iota // Запрошен, данные ещё не отправлены
	chunkSent                      // Данные отправлены клиенту
)

// Player участник мира. Позицию может менять сетевая горутина,
// остальное состояние принадлежит писателю мира.
type Player struct {
	svc      PlayerService
	conn     Connection
	world    *World
	entityID int32

	mu       sync.Mutex
	position vec.Position
	onGround bool

	// Под World.mu
	view          *view.View
	tracked       map[vec.ChunkPos]chunkState
	lastBroadcast vec.Position
	buf           *protocol.Buffer
	limiter       *rate.Limiter
	removed       bool
}

func newPlayer(svc PlayerService, conn Connection, w *World, entityID int32, pos vec.Position) *Player {
	p := &Player{
		svc:      svc,
		conn:     conn,
		world:    w,
		entityID: entityID,
		position: pos,
		tracked:  make(map[vec.ChunkPos]chunkState),
		buf:      protocol.NewBuffer(),
	}
	if w.opts.ChunkSendRate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(w.opts.ChunkSendRate), w.opts.ChunkSendBurst)
	}
	return p
}

// UUID идентификатор игрока
func (p *Player) UUID() uuid.UUID { return p.svc.UUID() }

// Name имя игрока
func (p *Player) Name() string { return p.svc.Name() }

// EntityID сетевой id сущности игрока
func (p *Player) EntityID() int32 { return p.entityID }

// World мир игрока
func (p *Player) World() *World { return p.world }

// Service настройки игрока
func (p *Player) Service() PlayerService { return p.svc }

// Position текущая позиция
func (p *Player) Position() vec.Position {
	pos, _ := p.snapshot()
	return pos
}

func (p *Player) snapshot() (vec.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, p.onGround
}

// SetPosition принимает позицию от клиента. Поворот нормализуется;
// координаты за границей мира и поворот вне диапазона отклоняются.
func (p *Player) SetPosition(pos vec.Position, onGround bool) error {
	if err := pos.Coord.Validate(); err != nil {
		return fmt.Errorf("player %s: %w", p.Name(), err)
	}
	rot, err := pos.Rot.Normalize()
	if err != nil {
		return fmt.Errorf("player %s: %w", p.Name(), err)
	}
	pos.Rot = rot

	p.mu.Lock()
	p.position, p.onGround = pos, onGround
	p.mu.Unlock()
	return nil
}

// TrackedChunks чанки, отправленные игроку
func (p *Player) TrackedChunks() []vec.ChunkPos {
	p.world.mu.Lock()
	defer p.world.mu.Unlock()
	return p.chunksIn(chunkSent)
}

// PendingChunks чанки, ожидающие загрузки или отправки
func (p *Player) PendingChunks() []vec.ChunkPos {
	p.world.mu.Lock()
	defer p.world.mu.Unlock()
	return p.chunksIn(chunkPending)
}

func (p *Player) chunksIn(st chunkState) []vec.ChunkPos {
	var out []vec.ChunkPos
	for pos, s := range p.tracked {
		if s == st {
			out = append(out, pos)
		}
	}
	if p.view != nil {
		view.SortClosestFirst(out, p.view.Center)
	}
	return out
}

// desiredView обзор, который должен быть у игрока при текущей позиции
func (p *Player) desiredView() view.View {
	pos := p.Position()
	return view.View{
		Center: vec.ChunkPosOf(pos.Coord),
		Radius: p.svc.ViewDistance(),
		Shape:  p.svc.ViewShape(),
	}
}

func (p *Player) writeCenter(pos vec.ChunkPos) error {
	return protocol.WriteSetCenterChunk(p.buf, pos)
}

func (p *Player) writeRenderDistance(radius int32) error {
	return protocol.WriteSetRenderDistance(p.buf, radius)
}

func (p *Player) writeUnload(pos vec.ChunkPos) error {
	return protocol.WriteUnloadChunk(p.buf, pos)
}

func (p *Player) writeChunk(c *chunk.Chunk) error {
	return protocol.WriteChunkData(p.buf, c)
}

// writeMovement пишет движение p в буфер viewer
func (p *Player) writeMovement(viewer *Player, to vec.Position, onGround bool) (bool, error) {
	return protocol.WriteEntityMovement(viewer.buf, p.entityID, p.lastBroadcast, to, onGround)
}

// writeSpawn показывает p игроку viewer
func (p *Player) writeSpawn(viewer *Player) error {
	if err := protocol.WritePlayerInfoAdd(viewer.buf, p.UUID(), p.Name()); err != nil {
		return err
	}
	return protocol.WriteSpawnPlayer(viewer.buf, p.entityID, p.UUID(), p.lastBroadcast)
}

// writeDespawn убирает p у игрока viewer
func (p *Player) writeDespawn(viewer *Player) error {
	if err := protocol.WriteRemoveEntities(viewer.buf, p.entityID); err != nil {
		return err
	}
	return protocol.WritePlayerInfoRemove(viewer.buf, p.UUID())
}
