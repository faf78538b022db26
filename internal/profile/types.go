package profile

import (
	"strings"
	"time"

	"eCard/internal/database"
)

// 可识别的社交链接键。
const (
	SocialMail     = "mail"
	SocialPhone    = "phone"
	SocialLinkedin = "linkedin"
	SocialGithub   = "github"
	SocialTwitter  = "twitter"
)

// Socials 表示名片上的联系方式，缺失的键视为空字符串。
type Socials struct {
	Mail     string `json:"mail"`
	Phone    string `json:"phone"`
	Linkedin string `json:"linkedin"`
	Github   string `json:"github"`
	Twitter  string `json:"twitter"`
}

// Get 按键名读取，未知键返回空字符串。
func (s Socials) Get(key string) string {
	switch key {
	case SocialMail:
		return s.Mail
	case SocialPhone:
		return s.Phone
	case SocialLinkedin:
		return s.Linkedin
	case SocialGithub:
		return s.Github
	case SocialTwitter:
		return s.Twitter
	default:
		return ""
	}
}

// SocialsFromMap 只挑出五个可识别的键，其余键被忽略。
func SocialsFromMap(m map[string]string) Socials {
	var s Socials
	for key, value := range m {
		switch strings.ToLower(strings.TrimSpace(key)) {
		case SocialMail:
			s.Mail = value
		case SocialPhone:
			s.Phone = value
		case SocialLinkedin:
			s.Linkedin = value
		case SocialGithub:
			s.Github = value
		case SocialTwitter:
			s.Twitter = value
		}
	}
	return s
}

// Project 是名片背面的项目条目，Description 存放项目链接。
type Project struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Profile 是对外暴露的资料记录，不包含密码哈希。
type Profile struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	ShareID      string    `json:"shareId"`
	Profession   string    `json:"profession"`
	PhotoURL     string    `json:"photoUrl"`
	ResumeURL    string    `json:"resumeUrl"`
	PortfolioURL string    `json:"portfolioUrl"`
	Skills       []string  `json:"skills"`
	Socials      Socials   `json:"socials"`
	Projects     []Project `json:"projects"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FromUser 将数据库行转换为 Profile，集合字段保证非 nil。
func FromUser(u database.User) Profile {
	skills := make([]string, 0, len(u.Skills))
	skills = append(skills, u.Skills...)

	projects := make([]Project, 0, len(u.Projects))
	for _, p := range u.Projects {
		projects = append(projects, Project{Name: p.Name, Description: p.Description})
	}

	socials := u.Socials.Data()

	return Profile{
		ID:           u.ID,
		Name:         u.Name,
		ShareID:      u.ShareID,
		Profession:   u.Profession,
		PhotoURL:     u.PhotoURL,
		ResumeURL:    u.ResumeURL,
		PortfolioURL: u.PortfolioURL,
		Skills:       skills,
		Socials: Socials{
			Mail:     socials.Mail,
			Phone:    socials.Phone,
			Linkedin: socials.Linkedin,
			Github:   socials.Github,
			Twitter:  socials.Twitter,
		},
		Projects:  projects,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// SaveInput 是一次保存请求携带的全部资料字段。
// 省略的字段会被写成空值，而不是保留旧值。
type SaveInput struct {
	Name         string
	Profession   string
	ResumeURL    string
	PortfolioURL string
	PhotoURL     string
	Skills       []string
	Socials      Socials
	Projects     []Project
}
