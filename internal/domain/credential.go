package domain

import "time"

// Credential 表示一条 Microsoft Graph 访问令牌记录。
// 同一时刻只有最新的一条 active 记录会被使用；过期后只置为
// inactive，从不删除，便于审计。
type Credential struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Token     string    `json:"-" gorm:"type:text;not null"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"index;not null"`
	Active    bool      `json:"active" gorm:"default:true;index"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired 判断令牌在给定时刻是否已过期。
func (c *Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
