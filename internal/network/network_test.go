package network

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GauntletMC/Graphite/internal/generator"
	"github.com/GauntletMC/Graphite/internal/logging"
	"github.com/GauntletMC/Graphite/internal/protocol"
	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world"
	"github.com/GauntletMC/Graphite/internal/world/chunk"
	"github.com/GauntletMC/Graphite/internal/world/view"
)

var spawn = vec.Position{Coord: vec.NewCoordinate(8, -63, 8)}

type fakePositions struct {
	mu  sync.Mutex
	pos map[uuid.UUID]vec.Position
	err error
}

func (f *fakePositions) LoadPosition(_ context.Context, id uuid.UUID) (vec.Position, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return vec.Position{}, false, f.err
	}
	p, ok := f.pos[id]
	return p, ok, nil
}

type testServer struct {
	srv   *Server
	world *world.World
	addr  string
	done  chan error
	stop  context.CancelFunc
}

func startServer(t *testing.T, maxPlayers int32, tweak func(*Config)) *testServer {
	t.Helper()
	quiet := logging.NewWriterLogger("network", io.Discard, logging.ERROR)

	flat, err := generator.NewFlatGenerator(chunk.Overworld, []generator.Layer{{Block: generator.Bedrock, Height: 1}})
	require.NoError(t, err)

	u := world.NewUniverse("Graphite", maxPlayers, protocol.DefaultRegistryCodec(chunk.Overworld))
	w, err := world.New(world.NewSettings(u, "overworld", chunk.Overworld, 1, 8), flat, world.Options{Logger: quiet})
	require.NoError(t, err)
	require.NoError(t, u.AddWorld(w))

	cfg := Config{
		World:        w,
		Spawn:        spawn,
		MOTD:         "test",
		ViewDistance: 2,
		ViewShape:    view.Square,
		Timeout:      2 * time.Second,
		Registry:     prometheus.NewRegistry(),
		Logger:       quiet,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{srv: srv, world: w, addr: ln.Addr().String(), done: make(chan error, 1), stop: cancel}
	go func() { _ = w.Run(ctx) }()
	go func() { ts.done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-ts.done
		w.Close()
	})
	return ts
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(id int32, fields ...pk.FieldEncoder) {
	c.t.Helper()
	require.NoError(c.t, pk.Marshal(id, fields...).Pack(c.conn, -1))
}

func (c *client) recv() pk.Packet {
	c.t.Helper()
	var p pk.Packet
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(c.t, p.UnPack(c.r, -1))
	return p
}

// recvUntil пропускает пакеты до пакета с номером id
func (c *client) recvUntil(id protocol.PacketID) pk.Packet {
	c.t.Helper()
	for {
		if p := c.recv(); protocol.PacketID(p.ID) == id {
			return p
		}
	}
}

func (c *client) handshake(version int32, next protocol.State) {
	c.send(int32(protocol.HandshakeID), pk.VarInt(version), pk.String("localhost"), pk.UnsignedShort(25565), pk.VarInt(next))
}

func (c *client) login(name string) pk.Packet {
	c.handshake(protocol.Version, protocol.StateLogin)
	c.send(int32(protocol.LoginStartID), pk.String(name), pk.Boolean(false))
	return c.recv()
}

func TestStatusAndPing(t *testing.T) {
	ts := startServer(t, 20, nil)
	c := dial(t, ts.addr)

	c.handshake(protocol.Version, protocol.StateStatus)
	c.send(int32(protocol.StatusRequestID))
	p := c.recv()
	require.EqualValues(t, protocol.StatusResponseID, p.ID)

	var raw pk.String
	require.NoError(t, p.Scan(&raw))
	var status protocol.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(raw), &status))
	assert.EqualValues(t, protocol.Version, status.Version.Protocol)
	assert.EqualValues(t, 20, status.Players.Max)
	assert.Zero(t, status.Players.Online)
	assert.Equal(t, "test", status.Description.Text)

	c.send(int32(protocol.PingRequestID), pk.Long(42))
	p = c.recv()
	require.EqualValues(t, protocol.PongResponseID, p.ID)
	var payload pk.Long
	require.NoError(t, p.Scan(&payload))
	assert.EqualValues(t, 42, payload)
}

func TestLoginJoinsWorld(t *testing.T) {
	ts := startServer(t, 20, nil)
	c := dial(t, ts.addr)

	p := c.login("Steve")
	require.EqualValues(t, protocol.LoginSuccessID, p.ID)
	var (
		id   pk.UUID
		name pk.String
	)
	require.NoError(t, p.Scan(&id, &name))
	assert.Equal(t, world.OfflineUUID("Steve"), uuid.UUID(id))
	assert.Equal(t, "Steve", string(name))

	join := c.recv()
	assert.EqualValues(t, protocol.JoinGame, join.ID)
	c.recvUntil(protocol.SynchronizePlayerPosition)

	require.Eventually(t, func() bool { return len(ts.world.Players()) == 1 }, 2*time.Second, 10*time.Millisecond)
	player := ts.world.Players()[0]
	assert.Equal(t, spawn, player.Position())
	assert.Eventually(t, func() bool { return ts.world.Stats().Pinned == 0 }, 2*time.Second, 10*time.Millisecond,
		"закрепление спавна снято после входа")

	c.send(int32(protocol.ConfirmTeleportation), pk.VarInt(0))
	c.send(int32(protocol.SetPlayerPosition), pk.Double(40), pk.Double(-63), pk.Double(8), pk.Boolean(true))
	require.Eventually(t, func() bool {
		return player.Position().X() == 40
	}, 2*time.Second, 10*time.Millisecond)

	c.conn.Close()
	require.Eventually(t, func() bool {
		return len(ts.world.Players()) == 0 && ts.srv.Connections() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLoginUsesSavedPosition(t *testing.T) {
	saved := vec.Position{Coord: vec.NewCoordinate(52, -63, 52), Rot: vec.Rotation{Yaw: 90}}
	positions := &fakePositions{pos: map[uuid.UUID]vec.Position{world.OfflineUUID("Alex"): saved}}
	ts := startServer(t, 20, func(cfg *Config) { cfg.Positions = positions })

	c := dial(t, ts.addr)
	require.EqualValues(t, protocol.LoginSuccessID, c.login("Alex").ID)
	c.recvUntil(protocol.SynchronizePlayerPosition)

	require.Eventually(t, func() bool { return len(ts.world.Players()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, saved, ts.world.Players()[0].Position())
}

func TestLoginFallsBackToSpawnOnLoadError(t *testing.T) {
	positions := &fakePositions{err: errors.New("redis down")}
	ts := startServer(t, 20, func(cfg *Config) { cfg.Positions = positions })

	c := dial(t, ts.addr)
	require.EqualValues(t, protocol.LoginSuccessID, c.login("Alex").ID)
	c.recvUntil(protocol.SynchronizePlayerPosition)

	require.Eventually(t, func() bool { return len(ts.world.Players()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, spawn, ts.world.Players()[0].Position())
}

func TestLoginRejectsWrongVersion(t *testing.T) {
	ts := startServer(t, 20, nil)
	c := dial(t, ts.addr)

	c.handshake(700, protocol.StateLogin)
	c.send(int32(protocol.LoginStartID), pk.String("Old"), pk.Boolean(false))
	p := c.recv()
	assert.EqualValues(t, protocol.LoginDisconnectID, p.ID)

	var reason pk.String
	require.NoError(t, p.Scan(&reason))
	assert.Contains(t, string(reason), ErrProtocolVersion.Error())
	assert.Empty(t, ts.world.Players())
}

func TestLoginRejectsWhenFull(t *testing.T) {
	ts := startServer(t, 1, nil)

	first := dial(t, ts.addr)
	require.EqualValues(t, protocol.LoginSuccessID, first.login("One").ID)
	require.Eventually(t, func() bool { return len(ts.world.Players()) == 1 }, 2*time.Second, 10*time.Millisecond)

	second := dial(t, ts.addr)
	p := second.login("Two")
	assert.EqualValues(t, protocol.LoginDisconnectID, p.ID)
	var reason pk.String
	require.NoError(t, p.Scan(&reason))
	assert.Contains(t, string(reason), ErrServerFull.Error())
	assert.Len(t, ts.world.Players(), 1)
}

func TestDuplicateLoginIsRejected(t *testing.T) {
	ts := startServer(t, 20, nil)

	first := dial(t, ts.addr)
	require.EqualValues(t, protocol.LoginSuccessID, first.login("Same").ID)
	require.Eventually(t, func() bool { return len(ts.world.Players()) == 1 }, 2*time.Second, 10*time.Millisecond)

	second := dial(t, ts.addr)
	require.EqualValues(t, protocol.LoginSuccessID, second.login("Same").ID)
	p := second.recvUntil(protocol.Disconnect)
	var reason pk.String
	require.NoError(t, p.Scan(&reason))
	assert.Contains(t, string(reason), world.ErrPlayerExists.Error())
	assert.Len(t, ts.world.Players(), 1)
}

func TestKeepAlive(t *testing.T) {
	ts := startServer(t, 20, func(cfg *Config) {
		cfg.KeepAliveInterval = 20 * time.Millisecond
	})
	c := dial(t, ts.addr)
	require.EqualValues(t, protocol.LoginSuccessID, c.login("Ping").ID)

	p := c.recvUntil(protocol.KeepAlive)
	var id pk.Long
	require.NoError(t, p.Scan(&id))
	c.send(int32(protocol.ServerKeepAlive), id)

	// Ответ принят, сервер присылает следующий Keep Alive
	p = c.recvUntil(protocol.KeepAlive)
	var next pk.Long
	require.NoError(t, p.Scan(&next))
	assert.NotEqual(t, id, next)
	assert.Len(t, ts.world.Players(), 1)
}

func TestSilentClientTimesOut(t *testing.T) {
	ts := startServer(t, 20, func(cfg *Config) {
		cfg.KeepAliveInterval = 20 * time.Millisecond
		cfg.Timeout = 150 * time.Millisecond
	})
	c := dial(t, ts.addr)
	require.EqualValues(t, protocol.LoginSuccessID, c.login("Mute").ID)

	require.Eventually(t, func() bool {
		return len(ts.world.Players()) == 0 && ts.srv.Connections() == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestShutdownClosesClients(t *testing.T) {
	ts := startServer(t, 20, nil)
	c := dial(t, ts.addr)
	require.EqualValues(t, protocol.LoginSuccessID, c.login("Bye").ID)
	require.Eventually(t, func() bool { return ts.srv.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	ts.stop()
	select {
	case err := <-ts.done:
		assert.NoError(t, err)
		ts.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve не завершился")
	}
	assert.Zero(t, ts.srv.Connections())
}
