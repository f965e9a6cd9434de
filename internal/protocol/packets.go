package protocol

import (
	"math"

	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/google/uuid"

	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world/chunk"
)

// BrandChannel канал плагин-сообщения с названием сервера
const BrandChannel = "minecraft:brand"

// JoinGameInfo поля пакета Login (play)
type JoinGameInfo struct {
	EntityID            int32
	Hardcore            bool
	GameMode            uint8
	PreviousGameMode    int8 // -1, если не было
	DimensionNames      []string
	RegistryCodec       any // Любое значение, кодируемое go-mc/nbt
	DimensionType       string
	DimensionName       string
	HashedSeed          int64
	MaxPlayers          int32
	ViewDistance        int32
	SimulationDistance  int32
	ReducedDebugInfo    bool
	EnableRespawnScreen bool
	IsDebug             bool
	IsFlat              bool
	PortalCooldown      int32
}

// WriteJoinGame пишет пакет входа в игру
func WriteJoinGame(b *Buffer, j JoinGameInfo) error {
	names := make([]pk.Identifier, len(j.DimensionNames))
	for i, n := range j.DimensionNames {
		names[i] = pk.Identifier(n)
	}
	return b.WritePacket(JoinGame,
		pk.Int(j.EntityID),
		pk.Boolean(j.Hardcore),
		pk.UnsignedByte(j.GameMode),
		pk.Byte(j.PreviousGameMode),
		pk.Array(names),
		pk.NBT(j.RegistryCodec),
		pk.Identifier(j.DimensionType),
		pk.Identifier(j.DimensionName),
		pk.Long(j.HashedSeed),
		pk.VarInt(j.MaxPlayers),
		pk.VarInt(j.ViewDistance),
		pk.VarInt(j.SimulationDistance),
		pk.Boolean(j.ReducedDebugInfo),
		pk.Boolean(j.EnableRespawnScreen),
		pk.Boolean(j.IsDebug),
		pk.Boolean(j.IsFlat),
		pk.Boolean(false), // Точки смерти нет
		pk.VarInt(j.PortalCooldown),
	)
}

// WriteBrand пишет плагин-сообщение minecraft:brand
func WriteBrand(b *Buffer, brand string) error {
	return b.WritePacket(PluginMessage, pk.Identifier(BrandChannel), pk.String(brand))
}

// WriteSetCenterChunk сообщает клиенту центр области загрузки
func WriteSetCenterChunk(b *Buffer, pos vec.ChunkPos) error {
	return b.WritePacket(SetCenterChunk, pk.VarInt(pos.X), pk.VarInt(pos.Z))
}

// WriteSetRenderDistance сообщает клиенту радиус обзора сервера
func WriteSetRenderDistance(b *Buffer, radius int32) error {
	return b.WritePacket(SetRenderDistance, pk.VarInt(radius))
}

// WriteChunkData пишет полный чанк со светом. Чанк должен быть в статусе Loaded.
func WriteChunkData(b *Buffer, c *chunk.Chunk) error {
	pos := c.Pos()
	return b.WritePacket(ChunkDataAndUpdateLight, pk.Int(pos.X), pk.Int(pos.Z), c)
}

// WriteUnloadChunk просит клиента забыть чанк. Порядок полей X, Z.
func WriteUnloadChunk(b *Buffer, pos vec.ChunkPos) error {
	return b.WritePacket(UnloadChunk, pk.Int(pos.X), pk.Int(pos.Z))
}

// WriteSyncPosition абсолютная телепортация игрока
func WriteSyncPosition(b *Buffer, p vec.Position, teleportID int32) error {
	return b.WritePacket(SynchronizePlayerPosition,
		pk.Double(p.Coord.XPos),
		pk.Double(p.Coord.YPos),
		pk.Double(p.Coord.ZPos),
		pk.Float(p.Rot.Yaw),
		pk.Float(p.Rot.Pitch),
		pk.Byte(0), // Все координаты абсолютные
		pk.VarInt(teleportID),
	)
}

// WriteDefaultSpawn точка возрождения и компаса
func WriteDefaultSpawn(b *Buffer, pos vec.BlockPos, angle float32) error {
	return b.WritePacket(SetDefaultSpawnPosition,
		pk.Position{X: pos.X, Y: pos.Y, Z: pos.Z},
		pk.Float(angle),
	)
}

// WriteKeepAlive пинг клиента
func WriteKeepAlive(b *Buffer, id int64) error {
	return b.WritePacket(KeepAlive, pk.Long(id))
}

// WriteDisconnect причина отключения в виде JSON-текста
func WriteDisconnect(b *Buffer, reason string) error {
	text, err := chatText(reason)
	if err != nil {
		return err
	}
	return b.WritePacket(Disconnect, pk.String(text))
}

// WritePlayerInfoAdd добавляет игрока в список (действие add player, без свойств)
func WritePlayerInfoAdd(b *Buffer, id uuid.UUID, name string) error {
	return b.WritePacket(PlayerInfoUpdate,
		pk.Byte(0x01),
		pk.VarInt(1),
		pk.UUID(id),
		pk.String(name),
		pk.VarInt(0),
	)
}

// WritePlayerInfoRemove убирает игроков из списка
func WritePlayerInfoRemove(b *Buffer, ids ...uuid.UUID) error {
	list := make([]pk.UUID, len(ids))
	for i, id := range ids {
		list[i] = pk.UUID(id)
	}
	return b.WritePacket(PlayerInfoRemove, pk.Array(list))
}

// WriteSpawnPlayer показывает другого игрока
func WriteSpawnPlayer(b *Buffer, entityID int32, id uuid.UUID, p vec.Position) error {
	return b.WritePacket(SpawnPlayer,
		pk.VarInt(entityID),
		pk.UUID(id),
		pk.Double(p.Coord.XPos),
		pk.Double(p.Coord.YPos),
		pk.Double(p.Coord.ZPos),
		pk.Angle(vec.AngleByte(p.Rot.Yaw)),
		pk.Angle(vec.AngleByte(p.Rot.Pitch)),
	)
}

// WriteRemoveEntities удаляет сущности у клиента
func WriteRemoveEntities(b *Buffer, entityIDs ...int32) error {
	list := make([]pk.VarInt, len(entityIDs))
	for i, id := range entityIDs {
		list[i] = pk.VarInt(id)
	}
	return b.WritePacket(RemoveEntities, pk.Array(list))
}

// positionDelta смещение в единицах 1/4096 блока; false, если не влезает в int16
func positionDelta(from, to float64) (int16, bool) {
	d := math.Round(to*4096) - math.Round(from*4096)
	if d < math.MinInt16 || d > math.MaxInt16 {
		return 0, false
	}
	return int16(d), true
}

// WriteEntityMovement выбирает пакет движения сущности:
// только поворот, только смещение, оба сразу или телепортацию при большом шаге.
// Поворот отправляется, только если он заметен на точности байта.
// Возвращает false, если отправлять нечего.
func WriteEntityMovement(b *Buffer, entityID int32, from, to vec.Position, onGround bool) (bool, error) {
	moved := from.Coord != to.Coord
	rotated := from.Rot.ChangedAtBytePrecision(to.Rot)
	if !moved && !rotated {
		return false, nil
	}

	eid := pk.VarInt(entityID)
	yaw, pitch := pk.Angle(vec.AngleByte(to.Rot.Yaw)), pk.Angle(vec.AngleByte(to.Rot.Pitch))

	if moved {
		dx, okX := positionDelta(from.Coord.XPos, to.Coord.XPos)
		dy, okY := positionDelta(from.Coord.YPos, to.Coord.YPos)
		dz, okZ := positionDelta(from.Coord.ZPos, to.Coord.ZPos)
		var err error
		switch {
		case !okX || !okY || !okZ:
			err = b.WritePacket(TeleportEntity, eid,
				pk.Double(to.Coord.XPos), pk.Double(to.Coord.YPos), pk.Double(to.Coord.ZPos),
				yaw, pitch, pk.Boolean(onGround))
		case rotated:
			err = b.WritePacket(UpdateEntityPositionAndRotation, eid,
				pk.Short(dx), pk.Short(dy), pk.Short(dz), yaw, pitch, pk.Boolean(onGround))
		default:
			err = b.WritePacket(UpdateEntityPosition, eid,
				pk.Short(dx), pk.Short(dy), pk.Short(dz), pk.Boolean(onGround))
		}
		if err != nil {
			return false, err
		}
	} else if err := b.WritePacket(UpdateEntityRotation, eid, yaw, pitch, pk.Boolean(onGround)); err != nil {
		return false, err
	}

	if rotated {
		if err := b.WritePacket(SetHeadRotation, eid, yaw); err != nil {
			return false, err
		}
	}
	return true, nil
}
