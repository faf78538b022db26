package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"eCard/internal/errcode"
)

// DefaultPixelRatio 是未指定像素倍率时的截图密度；下载流程使用 2。
const (
	DefaultPixelRatio  = 1
	DownloadPixelRatio = 2
	MaxPixelRatio      = 4
)

// Background 是合成透明区域时使用的不透明底色。
type Background struct {
	R, G, B int
}

// Black 是名片默认底色。
var Black = Background{}

// CaptureOptions 描述一次截图。
type CaptureOptions struct {
	// Selector 定位要截取的元素，例如 #ecard-front。
	Selector   string
	PixelRatio float64
	Background *Background
	// Width/Height 是视口尺寸，留空时使用 800x600。
	Width  int
	Height int
}

// Capturer 把一段 HTML 中的某个元素渲染为 PNG。
type Capturer interface {
	Capture(ctx context.Context, html string, opts CaptureOptions) ([]byte, error)
}

// RodCapturer 使用 go-rod 驱动无头 Chromium 截图。每次调用都会启动独立浏览器。
type RodCapturer struct {
	Logger  *slog.Logger
	Timeout time.Duration
}

// NewRodCapturer 构造 RodCapturer。
func NewRodCapturer(logger *slog.Logger, timeout time.Duration) *RodCapturer {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RodCapturer{Logger: logger, Timeout: timeout}
}

func normalize(opts CaptureOptions) CaptureOptions {
	if opts.PixelRatio <= 0 {
		opts.PixelRatio = DefaultPixelRatio
	}
	if opts.PixelRatio > MaxPixelRatio {
		opts.PixelRatio = MaxPixelRatio
	}
	if opts.Background == nil {
		bg := Black
		opts.Background = &bg
	}
	if opts.Width <= 0 {
		opts.Width = 800
	}
	if opts.Height <= 0 {
		opts.Height = 600
	}
	return opts
}

// captureErr 把底层错误包装为 ErrCapture，调用方据此提示用户重试。
func captureErr(step string, err error) error {
	return fmt.Errorf("%s: %w: %w", step, errcode.ErrCapture, err)
}

// Capture 渲染 html 并截取 opts.Selector 对应元素。失败时不返回任何字节。
func (c *RodCapturer) Capture(ctx context.Context, html string, opts CaptureOptions) ([]byte, error) {
	opts = normalize(opts)
	if opts.Selector == "" {
		return nil, captureErr("capture", fmt.Errorf("selector is required"))
	}

	launch := launcher.New().
		Headless(true).
		NoSandbox(true)
	defer launch.Cleanup()

	if path, ok := launcher.LookPath(); ok {
		launch = launch.Bin(path)
	}

	browserURL, err := launch.Context(ctx).Launch()
	if err != nil {
		return nil, captureErr("launch chromium", err)
	}

	browser := rod.New().ControlURL(browserURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, captureErr("connect browser", err)
	}
	defer func() {
		_ = browser.Close()
	}()

	page, err := browser.Timeout(c.Timeout).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, captureErr("create page", err)
	}
	defer func() {
		_ = page.Close()
	}()
	page = page.Timeout(c.Timeout)

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: opts.PixelRatio,
	}).Call(page); err != nil {
		return nil, captureErr("set device metrics", err)
	}

	// 透明根节点默认会被合成到白底上，这里显式指定不透明底色。
	if err := (proto.EmulationSetDefaultBackgroundColorOverride{
		Color: &proto.DOMRGBA{R: opts.Background.R, G: opts.Background.G, B: opts.Background.B, A: float64Ptr(1)},
	}).Call(page); err != nil {
		return nil, captureErr("set background", err)
	}

	if err := page.SetDocumentContent(html); err != nil {
		return nil, captureErr("set document content", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, captureErr("wait load", err)
	}

	c.Logger.Debug("Capture: waiting for element", slog.String("selector", opts.Selector))
	element, err := page.Timeout(10 * time.Second).Element(opts.Selector)
	if err != nil {
		return nil, captureErr("find element "+opts.Selector, err)
	}
	if err := element.WaitVisible(); err != nil {
		return nil, captureErr("wait visible", err)
	}

	// 等待图片与字体加载完成，避免截到占位状态。
	if _, evalErr := page.Timeout(5 * time.Second).Eval(`() => {
	  const imgs = Array.from(document.images).filter(img => !img.complete);
	  const fonts = (document.fonts && document.fonts.ready) ? document.fonts.ready : Promise.resolve();
	  return Promise.race([
	    Promise.all([fonts, ...imgs.map(img => new Promise(r => { img.onload = img.onerror = r; }))]).then(() => true),
	    new Promise(r => setTimeout(() => r(true), 3000))
	  ]);
	}`); evalErr != nil {
		c.Logger.Warn("Capture: resource wait failed, continue", slog.Any("error", evalErr))
	}

	data, err := element.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, captureErr("screenshot", err)
	}
	if len(data) == 0 {
		return nil, captureErr("screenshot", fmt.Errorf("empty image"))
	}

	return data, nil
}

func float64Ptr(value float64) *float64 {
	return &value
}
