// persistence/gorm_postgresql.go
package persistence

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/roomserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,         // 禁用彩色打印
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormPlayer{},
		&models.GormGameRecord{},
		&models.GormRoomSnapshot{},
	)
}

// SavePlayerRecord 保存玩家数据
func (p *GormPostgreSQL) SavePlayerRecord(account string, data map[string]interface{}) error {
	var player models.GormPlayer
	result := p.db.Where("account = ?", account).First(&player)

	if result.Error == gorm.ErrRecordNotFound {
		// 创建新记录
		player = models.GormPlayer{
			Account: account,
			Record:  data,
		}
		return p.db.Create(&player).Error
	} else if result.Error != nil {
		return result.Error
	}

	// 更新现有记录
	player.Record = data
	player.UpdatedAt = time.Now()
	return p.db.Save(&player).Error
}

// LoadPlayerRecord 加载玩家数据
func (p *GormPostgreSQL) LoadPlayerRecord(account string, result *map[string]interface{}) error {
	var player models.GormPlayer
	if err := p.db.Where("account = ?", account).First(&player).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrRecordNotFound
		}
		return err
	}

	*result = player.Record
	return nil
}

// SaveGameRecord 保存对局记录
func (p *GormPostgreSQL) SaveGameRecord(record *models.GameRecord) error {
	gameRecord := models.GormGameRecord{
		RoomID:       record.RoomID,
		Participants: record.Participants,
		Result:       record.Result,
		Duration:     record.Duration,
	}

	return p.db.Create(&gameRecord).Error
}

// SaveRoomSnapshot 保存房间快照
func (p *GormPostgreSQL) SaveRoomSnapshot(roomID, phase string, users map[string]interface{}) error {
	var snapshot models.GormRoomSnapshot
	result := p.db.Where("room_id = ?", roomID).First(&snapshot)

	if result.Error == gorm.ErrRecordNotFound {
		// 创建新记录
		snapshot = models.GormRoomSnapshot{
			RoomID: roomID,
			Phase:  phase,
			Users:  users,
		}
		return p.db.Create(&snapshot).Error
	} else if result.Error != nil {
		return result.Error
	}

	// 更新现有记录
	snapshot.Phase = phase
	snapshot.Users = users
	snapshot.UpdatedAt = time.Now()
	return p.db.Save(&snapshot).Error
}

// LoadRoomSnapshot 加载房间快照
func (p *GormPostgreSQL) LoadRoomSnapshot(roomID string, result *map[string]interface{}) error {
	var snapshot models.GormRoomSnapshot
	if err := p.db.Where("room_id = ?", roomID).First(&snapshot).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrRecordNotFound
		}
		return err
	}

	*result = snapshot.Users
	return nil
}

// PlayerAggregate 玩家对局统计
func (p *GormPostgreSQL) PlayerAggregate(account string) (map[string]interface{}, error) {
	var stats map[string]interface{}

	// 使用原生SQL做jsonb聚合。jsonb的?操作符和gorm占位符冲突，
	// 改用等价的 jsonb_exists。
	err := p.db.Raw(
		`
        SELECT
            COUNT(*) as total_games,
            COALESCE(SUM(duration), 0) as play_time
        FROM game_records
        WHERE jsonb_exists(participants, ?)`,
		account,
	).Scan(&stats).Error

	return stats, err
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// 添加事务支持
func (p *GormPostgreSQL) Transaction(fn func(tx *gorm.DB) error) error {
	return p.db.Transaction(fn)
}
