package model

// Notification 站内通知记录。通知子系统是外部协作方，这里只负责落库与投递，不保证送达。
// swagger:model Notification
type Notification struct {
	BaseModel
	UserID   uint   `gorm:"index;type:bigint unsigned" json:"userId"`
	Type     string `gorm:"size:50" json:"type"`
	Title    string `gorm:"size:255" json:"title"`
	Message  string `gorm:"type:text" json:"message"`
	Priority string `gorm:"size:10;default:'normal'" json:"priority"`
	Read     bool   `gorm:"default:false" json:"read"`
}

func (Notification) TableName() string {
	return "notifications"
}
