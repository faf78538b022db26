package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示系统中的账号信息，同时承载名片资料（单表反范式存储）。
type User struct {
	gorm.Model
	Name               string `gorm:"uniqueIndex;type:text;not null"`
	PasswordHash       string `gorm:"size:255"`
	MustChangePassword bool   `gorm:"default:false"`
	// ShareID 是注册时生成的稳定分享标识，改名后依然有效。
	ShareID      string                       `gorm:"uniqueIndex;size:36"`
	Profession   string                       `gorm:"type:text"`
	PhotoURL     string                       `gorm:"type:text"`
	ResumeURL    string                       `gorm:"type:text"`
	PortfolioURL string                       `gorm:"type:text"`
	Skills       datatypes.JSONSlice[string]  `gorm:"type:jsonb"`
	Socials      datatypes.JSONType[Socials]  `gorm:"type:jsonb"`
	Projects     datatypes.JSONSlice[Project] `gorm:"type:jsonb"`
}

// Socials 是 socials 列的 JSON 结构，只保留可识别的五个键。
type Socials struct {
	Mail     string `json:"mail,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Linkedin string `json:"linkedin,omitempty"`
	Github   string `json:"github,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
}

// Project 是 projects 列中的单个条目；Description 实际存放项目链接。
type Project struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// 导出任务状态。
const (
	ExportStatusPending   = "pending"
	ExportStatusCompleted = "completed"
	ExportStatusFailed    = "failed"
)

// CardExport 记录一次名片导出请求及其结果。
type CardExport struct {
	gorm.Model
	UserID       uint   `gorm:"index"`
	User         User   `gorm:"constraint:OnDelete:CASCADE"`
	Face         string `gorm:"size:8"`
	PixelRatio   int
	Status       string `gorm:"size:32"`
	TaskID       string `gorm:"size:64"`
	ObjectKey    string `gorm:"size:512"`
	ErrorMessage string `gorm:"type:text"`
}
