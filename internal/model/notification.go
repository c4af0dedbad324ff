package model

// Notification 站内通知，评分完成后写入，发送失败不影响评分结果
type Notification struct {
	UUIDBase
	UserID      uint   `gorm:"index;type:bigint unsigned" json:"userId"`
	Type        string `gorm:"size:50;index" json:"type"`
	Title       string `gorm:"size:255" json:"title"`
	Message     string `gorm:"type:text" json:"message"`
	Link        string `gorm:"size:255" json:"link"`
	RelatedID   string `gorm:"size:36" json:"relatedId"`
	RelatedType string `gorm:"size:50" json:"relatedType"`
	IsRead      bool   `gorm:"default:false" json:"isRead"`
}

func (Notification) TableName() string {
	return "notifications"
}
