package protocol

import (
	"encoding/json"
	"testing"

	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GauntletMC/Graphite/internal/vec"
)

func TestReadHandshake(t *testing.T) {
	p := pk.Marshal(int32(HandshakeID),
		pk.VarInt(Version), pk.String("localhost"), pk.UnsignedShort(25565), pk.VarInt(StateLogin))

	h, err := ReadHandshake(p)
	require.NoError(t, err)
	assert.Equal(t, Handshake{Protocol: Version, Address: "localhost", Port: 25565, Next: StateLogin}, h)

	_, err = ReadHandshake(pk.Marshal(int32(0x7F)))
	assert.Error(t, err)
}

func TestReadLoginStart(t *testing.T) {
	id := uuid.New()
	ls, err := ReadLoginStart(pk.Marshal(int32(LoginStartID), pk.String("alex"), pk.Boolean(true), pk.UUID(id)))
	require.NoError(t, err)
	assert.Equal(t, LoginStart{Name: "alex", UUID: id}, ls)

	ls, err = ReadLoginStart(pk.Marshal(int32(LoginStartID), pk.String("steve"), pk.Boolean(false)))
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, ls.UUID)

	_, err = ReadLoginStart(pk.Marshal(int32(LoginStartID), pk.String("a_name_that_is_too_long"), pk.Boolean(false)))
	assert.Error(t, err)
}

func TestApplyMovement(t *testing.T) {
	cur := vec.Position{Coord: vec.NewCoordinate(1, 2, 3), Rot: vec.Rotation{Yaw: 10, Pitch: 5}}

	cases := []struct {
		name   string
		packet pk.Packet
		want   vec.Position
		ground bool
	}{
		{
			name:   "position",
			packet: pk.Marshal(int32(SetPlayerPosition), pk.Double(4), pk.Double(5), pk.Double(6), pk.Boolean(true)),
			want:   vec.Position{Coord: vec.NewCoordinate(4, 5, 6), Rot: cur.Rot},
			ground: true,
		},
		{
			name: "position and rotation",
			packet: pk.Marshal(int32(SetPlayerPositionAndRotation),
				pk.Double(7), pk.Double(8), pk.Double(9), pk.Float(90), pk.Float(-45), pk.Boolean(false)),
			want: vec.Position{Coord: vec.NewCoordinate(7, 8, 9), Rot: vec.Rotation{Yaw: 90, Pitch: -45}},
		},
		{
			name:   "rotation",
			packet: pk.Marshal(int32(SetPlayerRotation), pk.Float(-30), pk.Float(12), pk.Boolean(true)),
			want:   vec.Position{Coord: cur.Coord, Rot: vec.Rotation{Yaw: -30, Pitch: 12}},
			ground: true,
		},
		{
			name:   "on ground",
			packet: pk.Marshal(int32(SetPlayerOnGround), pk.Boolean(true)),
			want:   cur,
			ground: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ground, ok, err := ApplyMovement(tc.packet, cur)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.ground, ground)
		})
	}

	_, _, ok, err := ApplyMovement(pk.Marshal(int32(ClientInformation)), cur)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, ok, err = ApplyMovement(pk.Marshal(int32(SetPlayerPosition), pk.Double(1)), cur)
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestStatusAndLoginFrames(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, WriteStatusResponse(b, NewStatusInfo("hello", 20, 3)))
	require.NoError(t, WritePong(b, 99))
	id := uuid.New()
	require.NoError(t, WriteLoginSuccess(b, id, "alex"))

	out := frames(t, b)
	require.Len(t, out, 3)

	var text pk.String
	require.NoError(t, out[0].Scan(&text))
	var status StatusInfo
	require.NoError(t, json.Unmarshal([]byte(text), &status))
	assert.EqualValues(t, Version, status.Version.Protocol)
	assert.Equal(t, 3, status.Players.Online)
	assert.Equal(t, "hello", status.Description.Text)

	pong, err := ReadPing(out[1])
	require.NoError(t, err)
	assert.EqualValues(t, 99, pong)

	var (
		gotID pk.UUID
		name  pk.String
		props pk.VarInt
	)
	require.NoError(t, out[2].Scan(&gotID, &name, &props))
	assert.Equal(t, id, uuid.UUID(gotID))
	assert.Equal(t, "alex", string(name))
	assert.Zero(t, props)
}
