package card

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

var (
	placeholderOnce sync.Once
	placeholderPNG  []byte
)

// PlaceholderPNG 返回未上传头像时显示的默认图片（130x150 灰底剪影）。
func PlaceholderPNG() []byte {
	placeholderOnce.Do(func() {
		const w, h = 130, 150
		bg := color.RGBA{R: 0x27, G: 0x27, B: 0x2a, A: 0xff}
		fg := color.RGBA{R: 0x52, G: 0x52, B: 0x5b, A: 0xff}

		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := bg
				dx, dy := x-w/2, y-55
				// 头
				if dx*dx+dy*dy <= 26*26 {
					c = fg
				}
				// 肩
				sx, sy := x-w/2, y-h
				if sx*sx+sy*sy <= 55*55 {
					c = fg
				}
				img.SetRGBA(x, y, c)
			}
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err == nil {
			placeholderPNG = buf.Bytes()
		}
	})
	return placeholderPNG
}
