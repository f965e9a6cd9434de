package world

import (
	"fmt"

	"github.com/GauntletMC/Graphite/internal/eventbus"
	"github.com/GauntletMC/Graphite/internal/protocol"
	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world/view"
)

// ProtoPlayer соединение, прошедшее логин, но ещё не вошедшее в мир
type ProtoPlayer struct {
	conn     Connection
	Hardcore bool
}

// NewProtoPlayer оборачивает соединение
func NewProtoPlayer(conn Connection) *ProtoPlayer {
	return &ProtoPlayer{conn: conn}
}

// CreatePlayer отправляет клиенту Join Game, brand и начальную позицию обзора одной
// записью и только после успешной записи регистрирует игрока в мире.
// Ошибки оборачивают ErrJoinAborted; в этом случае мир не меняется.
func (pp *ProtoPlayer) CreatePlayer(svc PlayerService, w *World, pos vec.Position) (*Player, error) {
	if err := pos.Coord.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJoinAborted, err)
	}
	rot, err := pos.Rot.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJoinAborted, err)
	}
	pos.Rot = rot

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped.Load() {
		return nil, fmt.Errorf("%w: %w", ErrJoinAborted, ErrWorldStopped)
	}
	if _, exists := w.players[svc.UUID()]; exists {
		w.m.joinAborted.Inc()
		return nil, fmt.Errorf("%w: %s: %w", ErrJoinAborted, svc.Name(), ErrPlayerExists)
	}

	uni := w.svc.Universe()
	p := newPlayer(svc, pp.conn, w, uni.NextEntityID(), pos)
	next := p.desiredView()

	spawn, ok := w.chunks[next.Center]
	if !ok || !spawn.IsLoaded() {
		w.m.joinAborted.Inc()
		w.log.Warn("Вход %s в %s отменён: чанк %s не загружен", svc.Name(), w.Name(), next.Center)
		return nil, fmt.Errorf("%w: spawn chunk %s: %w", ErrJoinAborted, next.Center, ErrChunkUnavailable)
	}

	b := p.buf
	err = protocol.WriteJoinGame(b, protocol.JoinGameInfo{
		EntityID:            p.entityID,
		Hardcore:            pp.Hardcore,
		GameMode:            svc.GameMode(),
		PreviousGameMode:    -1,
		DimensionNames:      uni.DimensionNames(),
		RegistryCodec:       uni.RegistryCodec(),
		DimensionType:       w.dim.Name,
		DimensionName:       w.dim.Name,
		HashedSeed:          w.svc.HashedSeed(),
		MaxPlayers:          uni.MaxPlayers(),
		ViewDistance:        next.Radius,
		SimulationDistance:  w.svc.SimulationDistance(),
		EnableRespawnScreen: true,
	})
	if err == nil {
		err = protocol.WriteBrand(b, uni.Brand())
	}
	if err == nil {
		err = p.writeCenter(next.Center)
	}
	if err == nil {
		err = p.writeChunk(spawn)
	}
	if err == nil {
		err = protocol.WriteSyncPosition(b, pos, 0)
	}
	if err != nil {
		w.m.joinAborted.Inc()
		return nil, fmt.Errorf("%w: encode: %w", ErrJoinAborted, err)
	}

	w.log.Debug("Вход %s: %d пакетов, %d байт", svc.Name(), b.Packets(), b.Len())
	if err := pp.conn.Write(b.Bytes()); err != nil {
		b.Reset()
		w.m.joinAborted.Inc()
		return nil, fmt.Errorf("%w: write: %w", ErrJoinAborted, err)
	}
	b.Reset()

	// Клиент получил мир, регистрируем игрока
	p.view = &next
	p.lastBroadcast = pos
	for _, c := range view.Diff(nil, next).ToLoad {
		p.tracked[c] = chunkPending
		w.acquire(c)
	}
	p.tracked[next.Center] = chunkSent
	w.m.sent.Inc()

	for _, q := range w.sortedPlayers() {
		if err := p.writeSpawn(q); err != nil {
			w.log.Error("Показ %s игроку %s: %v", p.Name(), q.Name(), err)
		}
		if err := q.writeSpawn(p); err != nil {
			w.log.Error("Показ %s игроку %s: %v", q.Name(), p.Name(), err)
		}
	}
	w.players[svc.UUID()] = p

	w.m.joinOK.Inc()
	w.m.players.Inc()
	w.log.Info("Игрок %s (eid %d) вошёл в мир %s на %s", p.Name(), p.entityID, w.Name(), pos)
	w.emit(eventbus.TypePlayerJoined, eventbus.PlayerEvent{
		World: w.Name(), UUID: p.UUID(), Name: p.Name(), EntityID: p.entityID,
	})
	return p, nil
}
