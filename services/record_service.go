// services/record_service.go
package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/models"
	"github.com/wfunc/roomserver/persistence"
)

// RecordService 把房间生命周期事件落库。全部尽力而为：
// 失败只记日志，绝不反馈到房间操作路径。
type RecordService struct {
	db persistence.Database
}

func NewRecordService(db persistence.Database) *RecordService {
	return &RecordService{db: db}
}

// RoomStarted 开局时保存房间快照
func (s *RecordService) RoomStarted(snapshot models.RoomSnapshot) {
	if s == nil || s.db == nil {
		return
	}

	users := make(map[string]interface{}, len(snapshot.Users))
	for account, user := range snapshot.Users {
		users[account] = map[string]interface{}{
			"nickname":  user.Nickname,
			"character": user.Character,
			"isReady":   user.IsReady,
		}
	}

	if err := s.db.SaveRoomSnapshot(snapshot.RoomID, "gaming", users); err != nil {
		logger.Log.Warnf("record service: save snapshot for room %s failed: %v", snapshot.RoomID, err)
	}
}

// RoomClosed 房间拆除时写对局记录并更新每个参与者的档案。
// 支持事务的驱动下两类写入在同一事务内完成。
func (s *RecordService) RoomClosed(snapshot models.RoomSnapshot) {
	if s == nil || s.db == nil {
		return
	}
	if !snapshot.State.GameStarted {
		return
	}

	duration := 0
	if snapshot.State.GameStartTime != nil {
		duration = int(time.Since(*snapshot.State.GameStartTime).Seconds())
	}

	participants := make(map[string]interface{}, len(snapshot.Users))
	for account, user := range snapshot.Users {
		participants[account] = map[string]interface{}{
			"nickname":  user.Nickname,
			"character": user.Character,
			"state":     string(user.State),
			"hp":        user.Stats.CurrentHP,
		}
	}

	record := &models.GameRecord{
		RoomID:       snapshot.RoomID,
		Participants: participants,
		Result:       map[string]interface{}{"userCount": len(snapshot.Users)},
		Duration:     duration,
	}

	if tx, ok := s.db.(persistence.Transactional); ok {
		err := tx.Transaction(func(db *gorm.DB) error {
			gameRecord := models.GormGameRecord{
				RoomID:       record.RoomID,
				Participants: record.Participants,
				Result:       record.Result,
				Duration:     record.Duration,
			}
			if err := db.Create(&gameRecord).Error; err != nil {
				return err
			}
			for account, info := range participants {
				player := models.GormPlayer{Account: account}
				if err := db.Where("account = ?", account).FirstOrCreate(&player).Error; err != nil {
					return err
				}
				player.Record = map[string]interface{}{"last_game": info, "last_room": record.RoomID}
				if err := db.Save(&player).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			logger.Log.Warnf("record service: save game record for room %s failed: %v", snapshot.RoomID, err)
		}
		return
	}

	if err := s.db.SaveGameRecord(record); err != nil {
		logger.Log.Warnf("record service: save game record for room %s failed: %v", snapshot.RoomID, err)
		return
	}
	for account, info := range participants {
		data := map[string]interface{}{"last_game": info, "last_room": record.RoomID}
		if err := s.db.SavePlayerRecord(account, data); err != nil {
			logger.Log.Warnf("record service: save player record for %s failed: %v", account, err)
		}
	}
}

// PlayerRecord 返回玩家档案和对局统计
func (s *RecordService) PlayerRecord(account string) (map[string]interface{}, error) {
	var record map[string]interface{}
	if err := s.db.LoadPlayerRecord(account, &record); err != nil && err != persistence.ErrRecordNotFound {
		return nil, err
	}

	aggregate, err := s.db.PlayerAggregate(account)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"account":   account,
		"record":    record,
		"aggregate": aggregate,
	}, nil
}
