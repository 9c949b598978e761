package model

import "time"

type UserRole string

const (
	Admin      UserRole = "admin"
	Instructor UserRole = "instructor"
	Reviewer   UserRole = "reviewer"
	Student    UserRole = "student"
)

// swagger:model User
type User struct {
	BaseModel
	Name     string   `gorm:"size:100;not null" json:"name"`
	Email    string   `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password string   `gorm:"size:255;not null" json:"-"`
	Role     UserRole `gorm:"size:20;default:'student'" json:"role"`
	// Expertise 审核人的擅长领域，用于分配时的专长匹配（如 programming、design）
	Expertise []string   `gorm:"type:json;serializer:json" json:"expertise,omitempty"`
	IsActive  bool       `gorm:"default:true" json:"isActive"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
}

func (User) TableName() string {
	return "users"
}
