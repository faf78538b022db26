package card

import (
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strings"
)

// Renderer 把视图模型渲染成 HTML，供分享页与导出截图使用。
type Renderer struct {
	facePage  *template.Template
	sharePage *template.Template
	// baseURL 用于把 /profile1.png 这类站内相对路径补全为绝对地址，
	// 无头浏览器通过 SetDocumentContent 加载页面时没有 origin。
	baseURL string
}

// NewRenderer 解析内置模板。baseURL 可为空。
func NewRenderer(baseURL string) (*Renderer, error) {
	facePage, err := template.New("face").Parse(faceTemplates)
	if err == nil {
		_, err = facePage.New("page").Parse(facePageTemplate)
	}
	if err != nil {
		return nil, fmt.Errorf("parse face template: %w", err)
	}

	sharePage, err := template.New("share").Parse(faceTemplates)
	if err == nil {
		_, err = sharePage.New("page").Parse(sharePageTemplate)
	}
	if err != nil {
		return nil, fmt.Errorf("parse share template: %w", err)
	}

	return &Renderer{
		facePage:  facePage,
		sharePage: sharePage,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}, nil
}

// SelectorFor 返回导出截图时定位单面名片的 CSS 选择器。
func SelectorFor(face Face) string {
	if face == FaceBack {
		return "#ecard-back"
	}
	return "#ecard-front"
}

// SharePage 是公开分享页的附加信息。
type SharePage struct {
	ShareURL   string
	QRImageURL string
}

type iconView struct {
	Kind  string
	Href  template.URL
	Glyph string
}

type linkView struct {
	Label string
	Href  template.URL
}

type pageView struct {
	Face       Face
	Front      FrontFace
	Back       BackFace
	Photo      template.URL
	Icons      []iconView
	ResumeHref template.URL
	Projects   []linkView
	QR         template.URL
	ShareURL   string
	QRImageURL template.URL
}

var iconGlyphs = map[string]string{
	"mail":     "Mail",
	"github":   "GitHub",
	"linkedin": "LinkedIn",
	"twitter":  "Twitter",
	"phone":    "Phone",
}

func (r *Renderer) view(face Face, front FrontFace, back BackFace) (pageView, error) {
	qr, err := QRDataURI(back.QRTarget, DefaultQRSize)
	if err != nil {
		return pageView{}, err
	}

	icons := make([]iconView, 0, len(front.ContactIcons))
	for _, icon := range front.ContactIcons {
		icons = append(icons, iconView{Kind: icon.Kind, Href: safeURL(icon.Href), Glyph: iconGlyphs[icon.Kind]})
	}
	projects := make([]linkView, 0, len(back.Projects))
	for _, p := range back.Projects {
		projects = append(projects, linkView{Label: p.Label, Href: safeURL(p.Href)})
	}

	return pageView{
		Face:       face,
		Front:      front,
		Back:       back,
		Photo:      r.imageURL(front.Photo),
		Icons:      icons,
		ResumeHref: safeURL(back.Resume.Href),
		Projects:   projects,
		QR:         template.URL(qr),
	}, nil
}

// RenderFace 输出只包含一面名片的完整 HTML 文档。
func (r *Renderer) RenderFace(w io.Writer, face Face, front FrontFace, back BackFace) error {
	view, err := r.view(face, front, back)
	if err != nil {
		return err
	}
	if err := r.facePage.ExecuteTemplate(w, "page", view); err != nil {
		return fmt.Errorf("render %s face: %w", face, err)
	}
	return nil
}

// RenderSharePage 输出可翻转的公开分享页。
func (r *Renderer) RenderSharePage(w io.Writer, front FrontFace, back BackFace, page SharePage) error {
	view, err := r.view(FaceFront, front, back)
	if err != nil {
		return err
	}
	view.ShareURL = page.ShareURL
	view.QRImageURL = safeURL(page.QRImageURL)
	if err := r.sharePage.ExecuteTemplate(w, "page", view); err != nil {
		return fmt.Errorf("render share page: %w", err)
	}
	return nil
}

func (r *Renderer) imageURL(src string) template.URL {
	if strings.HasPrefix(src, "data:image/") {
		return template.URL(src)
	}
	if strings.HasPrefix(src, "/") && !strings.HasPrefix(src, "//") && r.baseURL != "" {
		return template.URL(r.baseURL + src)
	}
	return safeURL(src)
}

// safeURL 只放行名片上会出现的几种 scheme，其余一律替换为 "#"。
func safeURL(raw string) template.URL {
	if raw == "" {
		return "#"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "#"
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https", "mailto", "tel":
		return template.URL(raw)
	default:
		return "#"
	}
}
