package card

import (
	"strings"

	"eCard/internal/profile"
)

// 资料缺失时使用的占位值。
const (
	PlaceholderName       = "Name"
	PlaceholderProfession = "Profession"
	PlaceholderPhoto      = "/profile1.png"
	FallbackQRTarget      = "https://example.com"
	ResumeLabel           = "View Resume"
	NoLinkLabel           = "No link"
	QRLevel               = "L"
	MaxFrontSkills        = 8
)

// 正面联系方式图标，按此顺序输出。
var contactOrder = []string{
	profile.SocialMail,
	profile.SocialGithub,
	profile.SocialLinkedin,
	profile.SocialTwitter,
	profile.SocialPhone,
}

// ContactIcon 是正面的一个联系方式图标。
type ContactIcon struct {
	Kind string `json:"kind"`
	Href string `json:"href"`
}

// ResumeEntry 是背面的简历链接；Present 为 false 时只显示 Label。
type ResumeEntry struct {
	Present bool   `json:"present"`
	Label   string `json:"label"`
	Href    string `json:"href,omitempty"`
}

// ProjectLink 是背面的项目条目。
type ProjectLink struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// FrontFace 是名片正面的视图模型。
type FrontFace struct {
	DisplayName       string        `json:"displayName"`
	DisplayProfession string        `json:"displayProfession"`
	Photo             string        `json:"photo"`
	SkillsShown       []string      `json:"skillsShown"`
	ContactIcons      []ContactIcon `json:"contactIcons"`
}

// BackFace 是名片背面的视图模型。
type BackFace struct {
	Resume           ResumeEntry   `json:"resumeEntry"`
	Projects         []ProjectLink `json:"projectList"`
	QRTarget         string        `json:"qrTarget"`
	QRLevel          string        `json:"qrLevel"`
	FooterName       string        `json:"footerName"`
	FooterProfession string        `json:"footerProfession"`
}

// Project 把资料投影成正反两面的视图模型。
// 纯函数：不做 I/O，不返回错误，缺失字段退化为占位值。
func Project(p profile.Profile) (FrontFace, BackFace) {
	name := orDefault(p.Name, PlaceholderName)
	profession := orDefault(p.Profession, PlaceholderProfession)

	shown := len(p.Skills)
	if shown > MaxFrontSkills {
		shown = MaxFrontSkills
	}
	skills := make([]string, shown)
	copy(skills, p.Skills[:shown])

	icons := make([]ContactIcon, 0, len(contactOrder))
	for _, kind := range contactOrder {
		value := p.Socials.Get(kind)
		if value == "" {
			continue
		}
		icons = append(icons, ContactIcon{Kind: kind, Href: contactHref(kind, value)})
	}

	front := FrontFace{
		DisplayName:       name,
		DisplayProfession: profession,
		Photo:             orDefault(p.PhotoURL, PlaceholderPhoto),
		SkillsShown:       skills,
		ContactIcons:      icons,
	}

	resume := ResumeEntry{Label: NoLinkLabel}
	if p.ResumeURL != "" {
		resume = ResumeEntry{Present: true, Label: ResumeLabel, Href: p.ResumeURL}
	}

	projects := make([]ProjectLink, 0, len(p.Projects))
	for _, proj := range p.Projects {
		projects = append(projects, ProjectLink{Label: proj.Name, Href: proj.Description})
	}

	back := BackFace{
		Resume:           resume,
		Projects:         projects,
		QRTarget:         orDefault(p.PortfolioURL, FallbackQRTarget),
		QRLevel:          QRLevel,
		FooterName:       name,
		FooterProfession: profession,
	}

	return front, back
}

func contactHref(kind, value string) string {
	switch kind {
	case profile.SocialMail:
		return ensurePrefix(value, "mailto:")
	case profile.SocialPhone:
		return ensurePrefix(value, "tel:")
	default:
		return value
	}
}

func ensurePrefix(value, prefix string) string {
	if strings.HasPrefix(value, prefix) {
		return value
	}
	return prefix + value
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
