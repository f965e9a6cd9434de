package world

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/GauntletMC/Graphite/internal/world/chunk"
	"github.com/GauntletMC/Graphite/internal/world/view"
)

// Settings WorldService с фиксированными параметрами
type Settings struct {
	universe           UniverseService
	name               string
	dim                chunk.Dimension
	seed               int64
	simulationDistance int32
}

// NewSettings описывает мир name в измерении dim
func NewSettings(u UniverseService, name string, dim chunk.Dimension, seed int64, simulationDistance int32) *Settings {
	return &Settings{universe: u, name: name, dim: dim, seed: seed, simulationDistance: simulationDistance}
}

func (s *Settings) Universe() UniverseService  { return s.universe }
func (s *Settings) Name() string               { return s.name }
func (s *Settings) Dimension() chunk.Dimension { return s.dim }
func (s *Settings) Seed() int64                { return s.seed }
func (s *Settings) SimulationDistance() int32  { return s.simulationDistance }

// HashedSeed первые 8 байт SHA-256 от сида, как ожидает клиент
func (s *Settings) HashedSeed() int64 {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], uint64(s.seed))
	sum := sha256.Sum256(raw[:])
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// Profile PlayerService с изменяемой дальностью обзора
type Profile struct {
	name         string
	id           uuid.UUID
	gameMode     uint8
	viewDistance atomic.Int32
	shape        view.Shape
}

// NewProfile создаёт профиль. Нулевой id заменяется офлайн-UUID по имени.
func NewProfile(name string, id uuid.UUID, gameMode uint8, viewDistance int32, shape view.Shape) *Profile {
	if id == uuid.Nil {
		id = OfflineUUID(name)
	}
	p := &Profile{name: name, id: id, gameMode: gameMode, shape: shape}
	p.viewDistance.Store(viewDistance)
	return p
}

func (p *Profile) Name() string          { return p.name }
func (p *Profile) UUID() uuid.UUID       { return p.id }
func (p *Profile) GameMode() uint8       { return p.gameMode }
func (p *Profile) ViewShape() view.Shape { return p.shape }
func (p *Profile) ViewDistance() int32   { return p.viewDistance.Load() }

// SetViewDistance меняет радиус; мир применит его в следующем тике
func (p *Profile) SetViewDistance(d int32) { p.viewDistance.Store(d) }

// OfflineUUID UUID версии 3 от "OfflinePlayer:<name>", как у офлайн-серверов
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = sum[6]&0x0f | 0x30
	sum[8] = sum[8]&0x3f | 0x80
	return uuid.UUID(sum)
}
