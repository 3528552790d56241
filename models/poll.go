package models

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Poll 投票活动，通过短码对外分享，创建后不可修改
type Poll struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Question  string    `gorm:"size:500;not null" json:"question"`
	PollCode  string    `gorm:"size:8;uniqueIndex;not null" json:"poll_code"`
	CreatedAt time.Time `json:"created_at"`

	// 选项按ID升序即创建顺序，用于展示
	Options []Option `gorm:"foreignKey:PollID;constraint:OnDelete:CASCADE" json:"options,omitempty"`
	Votes   []Vote   `gorm:"foreignKey:PollID;constraint:OnDelete:CASCADE" json:"-"`
}

// Option 投票选项，VoteCount是该选项票数的冗余计数，
// 必须始终等于引用它的Vote行数，只能通过原子自增修改
type Option struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	PollID     uint   `gorm:"not null;index" json:"poll_id"`
	OptionText string `gorm:"size:200;not null" json:"option_text"`
	VoteCount  int64  `gorm:"not null;default:0" json:"vote_count"`
}

// Vote 投票记录。两组唯一索引由存储层强制：
// 同一投票下每个IP至多一票，每个浏览器令牌至多一票
type Vote struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	PollID       uint      `gorm:"not null;uniqueIndex:uq_vote_poll_ip,priority:1;uniqueIndex:uq_vote_poll_token,priority:1" json:"poll_id"`
	OptionID     uint      `gorm:"not null;index" json:"option_id"`
	IPAddress    string    `gorm:"size:45;not null;uniqueIndex:uq_vote_poll_ip,priority:2" json:"-"`
	BrowserToken string    `gorm:"size:36;not null;uniqueIndex:uq_vote_poll_token,priority:2" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// PollCodeLength 短码固定长度，大小写不敏感，统一存储为大写
const PollCodeLength = 8

// GeneratePollCode 生成候选短码，取uuid4十六进制前8位并转为大写。
// 唯一性由调用方对照已有短码检查，冲突时重新生成
func GeneratePollCode() string {
	u := uuid.New()
	return strings.ToUpper(hex.EncodeToString(u[:])[:PollCodeLength])
}

// GenerateBrowserToken 生成浏览器令牌，作为弱匿名身份标识
func GenerateBrowserToken() string {
	return uuid.New().String()
}

// NormalizeCode 短码在所有入口统一归一化为大写
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
