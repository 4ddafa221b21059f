// persistence/interface.go
package persistence

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/wfunc/roomserver/models"
)

// Database 数据库接口。落库是纯粹的遥测用途：
// 服务重启不恢复房间，写入失败不影响房间操作。
type Database interface {
	SavePlayerRecord(account string, data map[string]interface{}) error
	LoadPlayerRecord(account string, result *map[string]interface{}) error
	SaveGameRecord(record *models.GameRecord) error
	SaveRoomSnapshot(roomID, phase string, users map[string]interface{}) error
	LoadRoomSnapshot(roomID string, result *map[string]interface{}) error
	PlayerAggregate(account string) (map[string]interface{}, error)
	Close() error
}

// Transactional 由支持多语句事务的驱动实现
type Transactional interface {
	Transaction(fn func(tx *gorm.DB) error) error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)
