package model

// PlatformSettings 评审流水线的运行参数，单行记录（id=1）。
// 配置文件提供默认值，管理员可在线修改，设置服务负责缓存与热更新。
// swagger:model PlatformSettings
type PlatformSettings struct {
	BaseModel
	AutoApprovalEnabled  bool `gorm:"default:false" json:"autoApprovalEnabled"`
	ScoreThreshold       int  `gorm:"default:85" json:"scoreThreshold"`
	MinDescriptionLength int  `gorm:"default:50" json:"minDescriptionLength"`
	MinSections          int  `gorm:"default:3" json:"minSections"`
	MinLessons           int  `gorm:"default:5" json:"minLessons"`
	DailyAutoApprovalCap int  `gorm:"default:50" json:"dailyAutoApprovalCap"`
	// RoleCapacity 每个审核角色允许同时持有的在途审批数上限
	RoleCapacity map[string]int `gorm:"type:json;serializer:json" json:"roleCapacity"`
	// SLATargetHours 按优先级的目标审核时长（小时）
	SLATargetHours map[string]int `gorm:"type:json;serializer:json" json:"slaTargetHours"`
	// StageRequirements 阶段 -> 必需角色，空则使用内置默认
	StageRequirements map[string][]string `gorm:"type:json;serializer:json" json:"stageRequirements"`
}

func (PlatformSettings) TableName() string {
	return "platform_settings"
}
