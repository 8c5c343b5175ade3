package opengraph

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/zfogg/beacon/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageFetcher loads the image behind an element's Src.
type ImageFetcher interface {
	Fetch(ctx context.Context, src string) (image.Image, error)
}

// placeholderColor fills image boxes whose source could not be loaded.
var placeholderColor = color.RGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}

// Render paints the layout and encodes it as PNG. Images that cannot be
// fetched are drawn as a neutral placeholder.
func Render(ctx context.Context, l *Layout, fetcher ImageFetcher) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, l.Width, l.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(l.Background), image.Point{}, draw.Src)

	for _, box := range l.Boxes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch box.Kind {
		case KindRect:
			draw.Draw(img, box.Rect, image.NewUniform(box.Color), image.Point{}, draw.Over)
		case KindImage:
			drawImage(ctx, img, box, fetcher)
		case KindText:
			drawText(img, box)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func drawImage(ctx context.Context, dst *image.RGBA, box Box, fetcher ImageFetcher) {
	var src image.Image
	var err error
	if fetcher != nil {
		src, err = fetcher.Fetch(ctx, box.Src)
	}
	if src == nil {
		if err != nil {
			logger.Log.Warn("Open Graph image fetch failed",
				zap.String("element", box.ElementID),
				zap.String("src", box.Src),
				zap.Error(err),
			)
		}
		draw.Draw(dst, box.Rect, image.NewUniform(placeholderColor), image.Point{}, draw.Src)
		return
	}
	draw.CatmullRom.Scale(dst, box.Rect, src, coverRect(src.Bounds(), box.Rect), draw.Over, nil)
}

// coverRect is the centered part of src with the aspect ratio of box, so the
// image fills the box without distortion.
func coverRect(src, box image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	bw, bh := box.Dx(), box.Dy()
	if sw == 0 || sh == 0 || bw == 0 || bh == 0 {
		return src
	}
	if sw*bh > sh*bw {
		w := sh * bw / bh
		x := src.Min.X + (sw-w)/2
		return image.Rect(x, src.Min.Y, x+w, src.Max.Y)
	}
	h := sw * bh / bw
	y := src.Min.Y + (sh-h)/2
	return image.Rect(src.Min.X, y, src.Max.X, y+h)
}

// drawText draws each line at 1x with basicfont, then scales it into the box.
func drawText(dst *image.RGBA, box Box) {
	lineHeight := int(glyphHeight * box.Scale)
	for i, line := range box.Lines {
		if line == "" {
			continue
		}
		w := lineWidth(line)
		glyphs := image.NewRGBA(image.Rect(0, 0, w, glyphHeight))
		d := font.Drawer{
			Dst:  glyphs,
			Src:  image.NewUniform(box.Color),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(0, glyphAscent),
		}
		d.DrawString(line)

		sw := int(float64(w) * box.Scale)
		x := box.Rect.Min.X
		switch box.Align {
		case AlignCenter:
			x += (box.Rect.Dx() - sw) / 2
		case AlignRight:
			x += box.Rect.Dx() - sw
		}
		y := box.Rect.Min.Y + i*lineHeight
		// wrapping keeps every line inside the box
		draw.NearestNeighbor.Scale(dst, image.Rect(x, y, x+sw, y+lineHeight), glyphs, glyphs.Bounds(), draw.Over, nil)
	}
}
