package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GauntletMC/Graphite/internal/auth"
	"github.com/GauntletMC/Graphite/internal/generator"
	"github.com/GauntletMC/Graphite/internal/logging"
	"github.com/GauntletMC/Graphite/internal/protocol"
	"github.com/GauntletMC/Graphite/internal/storage"
	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world"
	"github.com/GauntletMC/Graphite/internal/world/chunk"
	"github.com/GauntletMC/Graphite/internal/world/view"
)

type nopConn struct{ closed error }

func (c *nopConn) Write([]byte) error { return nil }
func (c *nopConn) Close(err error)    { c.closed = err }

type testEnv struct {
	srv       *AdminServer
	world     *world.World
	positions *storage.MemoryPositionRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithTokens(t, nil)
}

func newTestEnvWithTokens(t *testing.T, tokens *auth.Issuer) *testEnv {
	t.Helper()
	quiet := logging.NewWriterLogger("api", io.Discard, logging.ERROR)

	flat, err := generator.NewFlatGenerator(chunk.Overworld, []generator.Layer{{Block: generator.Bedrock, Height: 1}})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	u := world.NewUniverse("Graphite", 20, protocol.DefaultRegistryCodec(chunk.Overworld))
	w, err := world.New(world.NewSettings(u, "overworld", chunk.Overworld, 1, 8), flat, world.Options{
		Logger:  quiet,
		Metrics: world.NewMetrics(reg),
	})
	require.NoError(t, err)
	require.NoError(t, u.AddWorld(w))
	t.Cleanup(w.Close)

	positions := storage.NewMemoryPositionRepo()
	return &testEnv{
		srv: NewAdminServer(Config{
			Universe: u, Registry: reg, Tokens: tokens, Positions: positions, Logger: quiet,
		}),
		world:     w,
		positions: positions,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()
	return e.doAs(t, "", method, path, body)
}

func (e *testEnv) doAs(t *testing.T, token, method, path, body string) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)

	var resp GenericResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec, _ := e.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["worlds"])
	assert.NotContains(t, body, "world_stats")

	rec, _ = e.do(t, http.MethodGet, "/health?detailed=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detailed Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detailed))
	require.Len(t, detailed.WorldStats, 1)
	assert.Equal(t, "overworld", detailed.WorldStats[0].Name)
	assert.Positive(t, detailed.Process.Goroutines)
}

func TestWorldsAndPreload(t *testing.T) {
	e := newTestEnv(t)

	rec, resp := e.do(t, http.MethodPost, "/api/worlds/overworld/preload", `{"x":0,"z":0,"radius":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)

	rec, _ = e.do(t, http.MethodGet, "/api/worlds", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []world.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "overworld", list.Data[0].Name)
	assert.Equal(t, 9, list.Data[0].Loaded)
	assert.Equal(t, 9, list.Data[0].Pinned)

	rec, _ = e.do(t, http.MethodGet, "/api/worlds/nether", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/api/worlds/overworld/preload", `{"radius":99}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/api/worlds/overworld/unpin", `{"x":0,"z":0,"radius":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	e.world.Tick()
	st := e.world.Stats()
	assert.Zero(t, st.Pinned)
	assert.Zero(t, st.Loaded, "без зрителей чанки выгружаются")
}

func TestResetPosition(t *testing.T) {
	e := newTestEnv(t)
	id := world.OfflineUUID("alex")
	require.NoError(t, e.positions.SavePosition(context.Background(), id, vec.Position{Coord: vec.NewCoordinate(1, 2, 3)}))

	rec, resp := e.do(t, http.MethodDelete, "/api/players/"+id.String()+"/position", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)
	_, ok, err := e.positions.LoadPosition(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)

	rec, _ = e.do(t, http.MethodDelete, "/api/players/"+id.String()+"/position", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = e.do(t, http.MethodDelete, "/api/players/nope/position", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChunkInfo(t *testing.T) {
	e := newTestEnv(t)
	_, _ = e.do(t, http.MethodPost, "/api/worlds/overworld/preload", `{"x":2,"z":-1,"radius":0}`)

	rec, _ := e.do(t, http.MethodGet, "/api/worlds/overworld/chunks/2/-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Data ChunkInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, ChunkInfo{X: 2, Z: -1, Status: chunk.Loaded.String(), Sections: 24, NonEmpty: 1, MaxHeight: -63}, out.Data)

	rec, _ = e.do(t, http.MethodGet, "/api/worlds/overworld/chunks/9/9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = e.do(t, http.MethodGet, "/api/worlds/overworld/chunks/x/9", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlayersAndKick(t *testing.T) {
	e := newTestEnv(t)
	_, _ = e.do(t, http.MethodPost, "/api/worlds/overworld/preload", `{"radius":0}`)

	conn := &nopConn{}
	p, err := world.NewProtoPlayer(conn).CreatePlayer(
		world.NewProfile("steve", uuid.Nil, 1, 2, view.Square), e.world,
		vec.Position{Coord: vec.NewCoordinate(8, -60, 8)})
	require.NoError(t, err)

	rec, _ := e.do(t, http.MethodGet, "/api/worlds/overworld/players", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Data []PlayerInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Data, 1)
	assert.Equal(t, "steve", out.Data[0].Name)
	assert.Equal(t, p.UUID(), out.Data[0].UUID)
	assert.Equal(t, 1, out.Data[0].Tracked)

	rec, _ = e.do(t, http.MethodPost, "/api/worlds/overworld/players/not-a-uuid/kick", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = e.do(t, http.MethodPost, "/api/worlds/overworld/players/"+uuid.NewString()+"/kick", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/api/worlds/overworld/players/"+p.UUID().String()+"/kick", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ErrorIs(t, conn.closed, ErrKicked)
	assert.Empty(t, e.world.Players())
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	_, _ = e.do(t, http.MethodGet, "/health", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.Bytes()
	assert.True(t, bytes.Contains(body, []byte("graphite_admin_http_request_duration_seconds")))
	assert.True(t, bytes.Contains(body, []byte("graphite_world_")))
}

func TestOperatorTokenGuardsMutations(t *testing.T) {
	tokens, err := auth.NewIssuer(auth.GenerateSecureSecret(), time.Hour)
	require.NoError(t, err)
	e := newTestEnvWithTokens(t, tokens)

	rec, _ := e.do(t, http.MethodPost, "/api/worlds/overworld/preload", `{"radius":0}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = e.doAs(t, "garbage", http.MethodPost, "/api/worlds/overworld/preload", `{"radius":0}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, e.world.Stats().Pinned)

	token, err := tokens.Issue("alice")
	require.NoError(t, err)
	rec, _ = e.doAs(t, token, http.MethodPost, "/api/worlds/overworld/preload", `{"radius":0}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, e.world.Stats().Pinned)

	// Чтение не требует токена
	rec, _ = e.do(t, http.MethodGet, "/api/worlds/overworld", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogLevels(t *testing.T) {
	e := newTestEnv(t)

	rec, _ := e.do(t, http.MethodPut, "/api/logging/api-test", `{"console":"trace"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	l := logging.GetComponentLogger("api-test")
	assert.True(t, l.Enabled(logging.TRACE))

	rec, _ = e.do(t, http.MethodGet, "/api/logging", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data map[string]LogLevelInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, LogLevelInfo{Console: "TRACE", File: "TRACE"}, body.Data["api-test"])

	rec, _ = e.do(t, http.MethodPut, "/api/logging/api-test", `{"console":"loud"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
