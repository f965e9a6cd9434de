// Package protocol кодирует clientbound-пакеты фазы Play протокола 763 (Minecraft 1.20.1)
// поверх типов github.com/Tnze/go-mc/net/packet.
package protocol

// Version номер протокола
const Version = 763

// PacketID идентификатор clientbound-пакета фазы Play
type PacketID int32

// Идентификаторы зафиксированы для протокола 763
const (
	SpawnPlayer                     PacketID = 0x03
	PluginMessage                   PacketID = 0x17
	Disconnect                      PacketID = 0x1A
	UnloadChunk                     PacketID = 0x1E
	KeepAlive                       PacketID = 0x23
	ChunkDataAndUpdateLight         PacketID = 0x24
	JoinGame                        PacketID = 0x28
	UpdateEntityPosition            PacketID = 0x2B
	UpdateEntityPositionAndRotation PacketID = 0x2C
	UpdateEntityRotation            PacketID = 0x2D
	PlayerInfoRemove                PacketID = 0x39
	PlayerInfoUpdate                PacketID = 0x3A
	SynchronizePlayerPosition       PacketID = 0x3C
	RemoveEntities                  PacketID = 0x3E
	SetHeadRotation                 PacketID = 0x42
	SetCenterChunk                  PacketID = 0x4E
	SetRenderDistance               PacketID = 0x4F
	SetDefaultSpawnPosition         PacketID = 0x50
	TeleportEntity                  PacketID = 0x68
)

var packetNames = map[PacketID]string{
	SpawnPlayer:                     "spawn_player",
	PluginMessage:                   "plugin_message",
	Disconnect:                      "disconnect",
	UnloadChunk:                     "unload_chunk",
	KeepAlive:                       "keep_alive",
	ChunkDataAndUpdateLight:         "chunk_data",
	JoinGame:                        "join_game",
	UpdateEntityPosition:            "entity_position",
	UpdateEntityPositionAndRotation: "entity_position_rotation",
	UpdateEntityRotation:            "entity_rotation",
	PlayerInfoRemove:                "player_info_remove",
	PlayerInfoUpdate:                "player_info_update",
	SynchronizePlayerPosition:       "sync_player_position",
	RemoveEntities:                  "remove_entities",
	SetHeadRotation:                 "head_rotation",
	SetCenterChunk:                  "set_center_chunk",
	SetRenderDistance:               "set_render_distance",
	SetDefaultSpawnPosition:         "set_default_spawn",
	TeleportEntity:                  "teleport_entity",
}

// String имя пакета для логов и метрик
func (id PacketID) String() string {
	if name, ok := packetNames[id]; ok {
		return name
	}
	return "unknown"
}
