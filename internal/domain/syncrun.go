package domain

import "time"

// 同步模式。full 与 incremental 执行完全相同的对账算法，
// 模式只是写入运行日志供运维区分，不改变行为。
const (
	SyncModeFull        = "full"
	SyncModeIncremental = "incremental"
)

// 同步结果。
const (
	SyncOutcomeOK     = "ok"
	SyncOutcomeFailed = "failed"
)

// SyncRun 表示一次端到端同步的运行日志，只追加不修改，
// 在编排器入口创建、出口（无论成败）收尾一次。
type SyncRun struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Mode         string     `json:"mode" gorm:"type:varchar(50);index"`
	StartedAt    time.Time  `json:"startedAt" gorm:"index"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	Inserted     int        `json:"inserted" gorm:"default:0"`
	Updated      int        `json:"updated" gorm:"default:0"`
	Deleted      int        `json:"deleted" gorm:"default:0"`
	Outcome      string     `json:"outcome" gorm:"type:varchar(20);index"`
	ErrorMessage string     `json:"errorMessage,omitempty" gorm:"type:text"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// SyncStats 一次对账的分类计数。每个未被过滤的候选项
// 恰好落入 Inserted/Updated/Unchanged/Skipped 之一。
type SyncStats struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}
