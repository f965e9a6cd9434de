package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/google/uuid"

	"github.com/GauntletMC/Graphite/internal/vec"
)

// State следующее состояние из рукопожатия
type State int32

const (
	StateStatus State = 1
	StateLogin  State = 2
)

// Пакеты фаз Handshake, Status и Login. Номера пересекаются с Play,
// смысл определяется состоянием соединения.
const (
	HandshakeID     PacketID = 0x00 // serverbound
	StatusRequestID PacketID = 0x00 // serverbound
	PingRequestID   PacketID = 0x01 // serverbound
	LoginStartID    PacketID = 0x00 // serverbound

	StatusResponseID  PacketID = 0x00
	PongResponseID    PacketID = 0x01
	LoginDisconnectID PacketID = 0x00
	LoginSuccessID    PacketID = 0x02
)

// Serverbound-пакеты фазы Play, которые разбирает сервер
const (
	ConfirmTeleportation         PacketID = 0x00
	ClientInformation            PacketID = 0x08
	ServerKeepAlive              PacketID = 0x12
	SetPlayerPosition            PacketID = 0x14
	SetPlayerPositionAndRotation PacketID = 0x15
	SetPlayerRotation            PacketID = 0x16
	SetPlayerOnGround            PacketID = 0x17
)

// Handshake первый пакет соединения
type Handshake struct {
	Protocol int32
	Address  string
	Port     uint16
	Next     State
}

// ReadHandshake разбирает рукопожатие
func ReadHandshake(p pk.Packet) (Handshake, error) {
	if PacketID(p.ID) != HandshakeID {
		return Handshake{}, fmt.Errorf("handshake: unexpected packet 0x%02X", p.ID)
	}
	var (
		version pk.VarInt
		addr    pk.String
		port    pk.UnsignedShort
		next    pk.VarInt
	)
	if err := p.Scan(&version, &addr, &port, &next); err != nil {
		return Handshake{}, fmt.Errorf("handshake: %w", err)
	}
	return Handshake{Protocol: int32(version), Address: string(addr), Port: uint16(port), Next: State(next)}, nil
}

// LoginStart имя и, начиная с 1.19.3, необязательный UUID клиента
type LoginStart struct {
	Name string
	UUID uuid.UUID // uuid.Nil, если клиент не прислал
}

// ReadLoginStart разбирает Login Start
func ReadLoginStart(p pk.Packet) (LoginStart, error) {
	if PacketID(p.ID) != LoginStartID {
		return LoginStart{}, fmt.Errorf("login: unexpected packet 0x%02X", p.ID)
	}
	r := bytes.NewReader(p.Data)
	var (
		name pk.String
		has  pk.Boolean
		id   pk.UUID
	)
	if _, err := name.ReadFrom(r); err != nil {
		return LoginStart{}, fmt.Errorf("login start name: %w", err)
	}
	if len(name) == 0 || len(name) > 16 {
		return LoginStart{}, fmt.Errorf("login start: bad name %q", string(name))
	}
	if _, err := has.ReadFrom(r); err != nil {
		return LoginStart{}, fmt.Errorf("login start uuid flag: %w", err)
	}
	if has {
		if _, err := id.ReadFrom(r); err != nil {
			return LoginStart{}, fmt.Errorf("login start uuid: %w", err)
		}
	}
	return LoginStart{Name: string(name), UUID: uuid.UUID(id)}, nil
}

// ReadPing значение Ping Request или Keep Alive
func ReadPing(p pk.Packet) (int64, error) {
	var v pk.Long
	if err := p.Scan(&v); err != nil {
		return 0, fmt.Errorf("packet 0x%02X: %w", p.ID, err)
	}
	return int64(v), nil
}

// ApplyMovement применяет пакет движения к cur. ok == false для прочих пакетов.
func ApplyMovement(p pk.Packet, cur vec.Position) (next vec.Position, onGround, ok bool, err error) {
	var (
		x, y, z    pk.Double
		yaw, pitch pk.Float
		ground     pk.Boolean
	)
	next = cur
	switch PacketID(p.ID) {
	case SetPlayerPosition:
		err = p.Scan(&x, &y, &z, &ground)
		next.Coord = vec.NewCoordinate(float64(x), float64(y), float64(z))
	case SetPlayerPositionAndRotation:
		err = p.Scan(&x, &y, &z, &yaw, &pitch, &ground)
		next.Coord = vec.NewCoordinate(float64(x), float64(y), float64(z))
		next.Rot = vec.Rotation{Yaw: float32(yaw), Pitch: float32(pitch)}
	case SetPlayerRotation:
		err = p.Scan(&yaw, &pitch, &ground)
		next.Rot = vec.Rotation{Yaw: float32(yaw), Pitch: float32(pitch)}
	case SetPlayerOnGround:
		err = p.Scan(&ground)
	default:
		return cur, false, false, nil
	}
	if err != nil {
		return cur, false, true, fmt.Errorf("movement 0x%02X: %w", p.ID, err)
	}
	return next, bool(ground), true, nil
}

// StatusInfo ответ на запрос статуса (список серверов)
type StatusInfo struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int32  `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int32 `json:"max"`
		Online int   `json:"online"`
	} `json:"players"`
	Description struct {
		Text string `json:"text"`
	} `json:"description"`
}

// NewStatusInfo заполняет версию протокола
func NewStatusInfo(motd string, maxPlayers int32, online int) StatusInfo {
	var s StatusInfo
	s.Version.Name = "1.20.1"
	s.Version.Protocol = Version
	s.Players.Max = maxPlayers
	s.Players.Online = online
	s.Description.Text = motd
	return s
}

// WriteStatusResponse пишет JSON статуса
func WriteStatusResponse(b *Buffer, s StatusInfo) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return b.WritePacket(StatusResponseID, pk.String(data))
}

// WritePong ответ на Ping Request
func WritePong(b *Buffer, payload int64) error {
	return b.WritePacket(PongResponseID, pk.Long(payload))
}

// WriteLoginSuccess завершает фазу Login (без свойств профиля)
func WriteLoginSuccess(b *Buffer, id uuid.UUID, name string) error {
	return b.WritePacket(LoginSuccessID, pk.UUID(id), pk.String(name), pk.VarInt(0))
}

// WriteLoginDisconnect отказ во входе
func WriteLoginDisconnect(b *Buffer, reason string) error {
	text, err := chatText(reason)
	if err != nil {
		return err
	}
	return b.WritePacket(LoginDisconnectID, pk.String(text))
}

func chatText(s string) ([]byte, error) {
	return json.Marshal(struct {
		Text string `json:"text"`
	}{Text: s})
}
