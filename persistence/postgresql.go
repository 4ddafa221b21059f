// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq" // PostgreSQL 驱动

	"github.com/wfunc/roomserver/models"
)

// PostgreSQL 数据库实现
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(db *sql.DB) error {
	// 创建玩家表
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS players (
            id SERIAL PRIMARY KEY,
            account VARCHAR(255) UNIQUE NOT NULL,
            record JSONB NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	// 创建对局记录表
	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS game_records (
            id SERIAL PRIMARY KEY,
            room_id VARCHAR(255) NOT NULL,
            participants JSONB NOT NULL,
            result JSONB NOT NULL,
            duration INT NOT NULL DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	// 创建房间快照表
	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS room_snapshots (
            id SERIAL PRIMARY KEY,
            room_id VARCHAR(255) UNIQUE NOT NULL,
            phase VARCHAR(50) NOT NULL,
            users JSONB NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.Exec(`
        CREATE INDEX IF NOT EXISTS idx_players_account ON players(account);
        CREATE INDEX IF NOT EXISTS idx_game_records_room_id ON game_records(room_id);
        CREATE INDEX IF NOT EXISTS idx_game_records_created_at ON game_records(created_at);
        CREATE INDEX IF NOT EXISTS idx_room_snapshots_room_id ON room_snapshots(room_id);
    `)

	return err
}

// SavePlayerRecord 保存玩家数据
func (p *PostgreSQL) SavePlayerRecord(account string, data map[string]interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 使用 UPSERT 操作 (PostgreSQL 9.5+)
	query := `
        INSERT INTO players (account, record)
        VALUES ($1, $2)
        ON CONFLICT (account)
        DO UPDATE SET record = $2, updated_at = CURRENT_TIMESTAMP
    `

	_, err = p.db.ExecContext(ctx, query, account, jsonData)
	return err
}

// LoadPlayerRecord 加载玩家数据
func (p *PostgreSQL) LoadPlayerRecord(account string, result *map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var data []byte
	query := `SELECT record FROM players WHERE account = $1`
	err := p.db.QueryRowContext(ctx, query, account).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrRecordNotFound
		}
		return err
	}

	return json.Unmarshal(data, result)
}

// SaveGameRecord 保存对局记录
func (p *PostgreSQL) SaveGameRecord(record *models.GameRecord) error {
	participants, err := json.Marshal(record.Participants)
	if err != nil {
		return err
	}
	result, err := json.Marshal(record.Result)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
        INSERT INTO game_records (room_id, participants, result, duration)
        VALUES ($1, $2, $3, $4)
    `

	_, err = p.db.ExecContext(ctx, query, record.RoomID, participants, result, record.Duration)
	return err
}

// SaveRoomSnapshot 保存房间快照
func (p *PostgreSQL) SaveRoomSnapshot(roomID, phase string, users map[string]interface{}) error {
	usersJSON, err := json.Marshal(users)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
        INSERT INTO room_snapshots (room_id, phase, users)
        VALUES ($1, $2, $3)
        ON CONFLICT (room_id)
        DO UPDATE SET phase = $2, users = $3, updated_at = CURRENT_TIMESTAMP
    `

	_, err = p.db.ExecContext(ctx, query, roomID, phase, usersJSON)
	return err
}

// LoadRoomSnapshot 加载房间快照
func (p *PostgreSQL) LoadRoomSnapshot(roomID string, result *map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var data []byte
	query := `SELECT users FROM room_snapshots WHERE room_id = $1`
	err := p.db.QueryRowContext(ctx, query, roomID).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrRecordNotFound
		}
		return err
	}

	return json.Unmarshal(data, result)
}

// PlayerAggregate 玩家对局统计
func (p *PostgreSQL) PlayerAggregate(account string) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var totalGames int
	var playTime sql.NullInt64
	query := `
        SELECT COUNT(*), COALESCE(SUM(duration), 0)
        FROM game_records
        WHERE participants ? $1
    `
	if err := p.db.QueryRowContext(ctx, query, account).Scan(&totalGames, &playTime); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"total_games": totalGames,
		"play_time":   playTime.Int64,
	}, nil
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
