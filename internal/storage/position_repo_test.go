package storage

import (
	"context"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GauntletMC/Graphite/internal/vec"
)

func testPos(x, y, z float64, yaw, pitch float32) vec.Position {
	return vec.Position{Coord: vec.NewCoordinate(x, y, z), Rot: vec.Rotation{Yaw: yaw, Pitch: pitch}}
}

// testPositionRepo общий набор проверок для всех реализаций PositionRepo
func testPositionRepo(t *testing.T, repo PositionRepo) {
	ctx := context.Background()

	t.Run("SaveAndLoad", func(t *testing.T) {
		id := uuid.New()
		want := testPos(10.5, 64, -3.25, 90, 15)
		require.NoError(t, repo.SavePosition(ctx, id, want))

		got, found, err := repo.LoadPosition(ctx, id)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, want, got)
	})

	t.Run("LoadMissing", func(t *testing.T) {
		got, found, err := repo.LoadPosition(ctx, uuid.New())
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, vec.Position{}, got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		id := uuid.New()
		require.NoError(t, repo.SavePosition(ctx, id, testPos(1, 2, 3, 0, 0)))
		require.NoError(t, repo.SavePosition(ctx, id, testPos(4, 5, 6, 0, 0)))

		got, found, err := repo.LoadPosition(ctx, id)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, 4.0, got.X())
	})

	t.Run("NormalizesRotation", func(t *testing.T) {
		id := uuid.New()
		require.NoError(t, repo.SavePosition(ctx, id, testPos(0, 0, 0, 270, 0)))

		got, _, err := repo.LoadPosition(ctx, id)
		require.NoError(t, err)
		assert.InDelta(t, -90, got.Rot.Yaw, 1e-4)
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		assert.Error(t, repo.SavePosition(ctx, uuid.Nil, testPos(0, 0, 0, 0, 0)))
		assert.Error(t, repo.SavePosition(ctx, uuid.New(), testPos(math.NaN(), 0, 0, 0, 0)))
		assert.Error(t, repo.SavePosition(ctx, uuid.New(), testPos(0, 0, 0, float32(math.Inf(1)), 0)))
	})

	t.Run("Delete", func(t *testing.T) {
		id := uuid.New()
		require.NoError(t, repo.SavePosition(ctx, id, testPos(1, 1, 1, 0, 0)))
		require.NoError(t, repo.DeletePosition(ctx, id))

		_, found, err := repo.LoadPosition(ctx, id)
		require.NoError(t, err)
		assert.False(t, found)

		assert.ErrorIs(t, repo.DeletePosition(ctx, uuid.New()), ErrPositionNotFound)
	})

	t.Run("BatchSave", func(t *testing.T) {
		batch := map[uuid.UUID]vec.Position{
			uuid.New(): testPos(1, 1, 1, 0, 0),
			uuid.New(): testPos(2, 2, 2, 0, 0),
			uuid.New(): testPos(3, 3, 3, 0, 0),
		}
		require.NoError(t, repo.BatchSave(ctx, batch))

		for id, want := range batch {
			got, found, err := repo.LoadPosition(ctx, id)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, want, got)
		}
	})
}

func TestMemoryPositionRepo(t *testing.T) {
	repo := NewMemoryPositionRepo()
	testPositionRepo(t, repo)

	t.Run("BatchIsAllOrNothing", func(t *testing.T) {
		before := repo.Count()
		err := repo.BatchSave(context.Background(), map[uuid.UUID]vec.Position{
			uuid.New(): testPos(1, 1, 1, 0, 0),
			uuid.Nil:   testPos(2, 2, 2, 0, 0),
		})
		require.Error(t, err)
		assert.Equal(t, before, repo.Count())
	})

	t.Run("CancelledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, repo.SavePosition(ctx, uuid.New(), testPos(0, 0, 0, 0, 0)), context.Canceled)
	})
}

// Интеграционные тесты запускаются только при заданных адресах
func TestMariaPositionRepo(t *testing.T) {
	dsn := os.Getenv("GRAPHITE_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("GRAPHITE_TEST_MYSQL_DSN не задан")
	}
	repo, err := NewMariaPositionRepo(context.Background(), dsn)
	require.NoError(t, err)
	defer repo.Close()

	testPositionRepo(t, repo)
}

func TestRedisPositionRepo(t *testing.T) {
	addr := os.Getenv("GRAPHITE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GRAPHITE_TEST_REDIS_ADDR не задан")
	}
	cfg := DefaultRedisConfig()
	cfg.Addr = addr
	cfg.KeyPrefix = "graphite:test:" + uuid.NewString() + ":"
	cfg.TTL = 0

	repo, err := NewRedisPositionRepo(context.Background(), cfg)
	require.NoError(t, err)
	defer repo.Close()

	testPositionRepo(t, repo)
}

func TestUpsertStatement(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	query, args := upsertStatement([]positionRow{
		{id: a, pos: testPos(1, 2, 3, 90, 10)},
		{id: b, pos: testPos(-1, 70, 0.5, 0, 0)},
	})

	assert.Equal(t, 2, strings.Count(query, "(?,?,?,?,?,?)"))
	assert.Contains(t, query, "ON DUPLICATE KEY UPDATE")
	require.Len(t, args, 12)
	assert.Equal(t, a[:], args[0])
	assert.Equal(t, 2.0, args[2])
	assert.Equal(t, float32(90), args[4])
	assert.Equal(t, b[:], args[6])
}

func TestValidateAllRejectsWholeBatch(t *testing.T) {
	rows, err := validateAll(map[uuid.UUID]vec.Position{
		uuid.New(): testPos(0, 64, 0, 0, 0),
		uuid.New(): testPos(math.NaN(), 64, 0, 0, 0),
	})
	assert.Error(t, err)
	assert.Nil(t, rows)

	rows, err = validateAll(map[uuid.UUID]vec.Position{uuid.New(): testPos(0, 64, 0, 450, 0)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, float32(90), rows[0].pos.Rot.Yaw)
}
