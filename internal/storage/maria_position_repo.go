package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/GauntletMC/Graphite/internal/vec"
)

// maxBatchRows строк в одном INSERT автосохранения; 6 плейсхолдеров на строку
const maxBatchRows = 500

const positionsSchema = `
CREATE TABLE IF NOT EXISTS player_positions (
	player_uuid BINARY(16) PRIMARY KEY,
	x DOUBLE NOT NULL,
	y DOUBLE NOT NULL,
	z DOUBLE NOT NULL,
	yaw FLOAT NOT NULL DEFAULT 0,
	pitch FLOAT NOT NULL DEFAULT 0,
	saved_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3)
) ENGINE=InnoDB`

const positionsUpsertTail = `
ON DUPLICATE KEY UPDATE x = VALUES(x), y = VALUES(y), z = VALUES(z), yaw = VALUES(yaw), pitch = VALUES(pitch)`

// MariaPositionRepo PositionRepo поверх MariaDB/MySQL, таблица player_positions.
// UUID хранится в BINARY(16).
type MariaPositionRepo struct {
	db *sql.DB
}

// NewMariaPositionRepo открывает пул по dsn (user:pass@tcp(host:port)/db)
// и создаёт таблицу, если её нет
func NewMariaPositionRepo(ctx context.Context, dsn string) (*MariaPositionRepo, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql %s: %w", cfg.Addr, err)
	}
	if _, err := db.ExecContext(ctx, positionsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create player_positions: %w", err)
	}
	return &MariaPositionRepo{db: db}, nil
}

func (r *MariaPositionRepo) SavePosition(ctx context.Context, id uuid.UUID, pos vec.Position) error {
	return r.BatchSave(ctx, map[uuid.UUID]vec.Position{id: pos})
}

func (r *MariaPositionRepo) LoadPosition(ctx context.Context, id uuid.UUID) (vec.Position, bool, error) {
	var pos vec.Position
	err := r.db.QueryRowContext(ctx,
		`SELECT x, y, z, yaw, pitch FROM player_positions WHERE player_uuid = ?`, id[:],
	).Scan(&pos.Coord.XPos, &pos.Coord.YPos, &pos.Coord.ZPos, &pos.Rot.Yaw, &pos.Rot.Pitch)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return vec.Position{}, false, nil
	case err != nil:
		return vec.Position{}, false, fmt.Errorf("load position %s: %w", id, err)
	}
	return pos, true, nil
}

func (r *MariaPositionRepo) DeletePosition(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM player_positions WHERE player_uuid = ?`, id[:])
	if err != nil {
		return fmt.Errorf("delete position %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", id, ErrPositionNotFound)
	}
	return nil
}

// BatchSave пишет позиции многострочными upsert'ами в одной транзакции.
// Одна недопустимая позиция отменяет всю пачку.
func (r *MariaPositionRepo) BatchSave(ctx context.Context, positions map[uuid.UUID]vec.Position) error {
	rows, err := validateAll(positions)
	if err != nil || len(rows) == 0 {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for len(rows) > 0 {
		n := min(len(rows), maxBatchRows)
		query, args := upsertStatement(rows[:n])
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert %d positions: %w", n, err)
		}
		rows = rows[n:]
	}
	return tx.Commit()
}

func (r *MariaPositionRepo) Close() error {
	return r.db.Close()
}

type positionRow struct {
	id  uuid.UUID
	pos vec.Position
}

func validateAll(positions map[uuid.UUID]vec.Position) ([]positionRow, error) {
	rows := make([]positionRow, 0, len(positions))
	for id, pos := range positions {
		pos, err := validatePosition(id, pos)
		if err != nil {
			return nil, err
		}
		rows = append(rows, positionRow{id: id, pos: pos})
	}
	return rows, nil
}

// upsertStatement INSERT ... VALUES (?,?,?,?,?,?),... ON DUPLICATE KEY UPDATE
func upsertStatement(rows []positionRow) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO player_positions (player_uuid, x, y, z, yaw, pitch) VALUES ")
	args := make([]any, 0, len(rows)*6)
	for i, row := range rows {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString("(?,?,?,?,?,?)")
		args = append(args, row.id[:], row.pos.X(), row.pos.Y(), row.pos.Z(), row.pos.Rot.Yaw, row.pos.Rot.Pitch)
	}
	b.WriteString(positionsUpsertTail)
	return b.String(), args
}
