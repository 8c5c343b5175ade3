package opengraph

import (
	"image"
	"image/color"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Glyph metrics of basicfont.Face7x13 at scale 1.
const (
	glyphWidth  = 7
	glyphHeight = 13
	glyphAscent = 11
)

const ellipsis = "..."

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Layout is a template resolved against variables: boxes in paint order,
// clamped to the canvas, with text already wrapped.
type Layout struct {
	Width      int
	Height     int
	Background color.RGBA
	Boxes      []Box
}

// Box is a positioned element ready to paint.
type Box struct {
	ElementID string
	Kind      string
	Rect      image.Rectangle
	Color     color.RGBA
	Src       string
	Lines     []string
	Scale     float64
	Align     string
}

// Substitute replaces {{var}} placeholders. Unknown variables become empty.
func Substitute(text string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		return vars[name]
	})
}

// LayoutTemplate resolves a validated template. Elements are painted by Z,
// then in declaration order.
func LayoutTemplate(t *Template, vars map[string]string) *Layout {
	bg, _ := ParseColor(t.Background)
	out := &Layout{Width: t.Width, Height: t.Height, Background: bg}
	canvas := image.Rect(0, 0, t.Width, t.Height)

	order := make([]int, len(t.Elements))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return t.Elements[order[a]].Z < t.Elements[order[b]].Z
	})

	for _, i := range order {
		el := t.Elements[i]
		rect := image.Rect(el.X, el.Y, el.X+el.W, el.Y+el.H).Intersect(canvas)
		if rect.Empty() {
			continue
		}
		c, _ := ParseColor(el.Color)
		box := Box{ElementID: el.ID, Kind: el.Kind, Rect: rect, Color: c, Src: el.Src, Scale: el.FontScale, Align: el.Align}

		if el.Kind == KindText {
			cols := int(float64(rect.Dx()) / (glyphWidth * el.FontScale))
			rows := int(float64(rect.Dy()) / (glyphHeight * el.FontScale))
			box.Lines = wrapText(Substitute(el.Text, vars), cols, rows)
			if len(box.Lines) == 0 {
				continue
			}
		}
		out.Boxes = append(out.Boxes, box)
	}
	return out
}

// wrapText breaks text into at most rows lines of at most cols glyphs.
// Explicit newlines are kept; words longer than a line are split. When the
// text does not fit, the last line ends with an ellipsis.
func wrapText(text string, cols, rows int) []string {
	if cols <= 0 || rows <= 0 {
		return nil
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		lines = append(lines, wrapParagraph(para, cols)...)
	}
	// drop trailing blank lines
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) <= rows {
		return lines
	}

	lines = lines[:rows]
	last := []rune(strings.TrimRight(lines[rows-1], " "))
	if cols <= len(ellipsis) {
		lines[rows-1] = ellipsis[:cols]
		return lines
	}
	if len(last) > cols-len(ellipsis) {
		last = []rune(strings.TrimRight(string(last[:cols-len(ellipsis)]), " "))
	}
	lines[rows-1] = string(last) + ellipsis
	return lines
}

func wrapParagraph(para string, cols int) []string {
	words := strings.Fields(para)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var cur []rune
	for _, w := range words {
		word := []rune(w)
		for len(word) > cols {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = nil
			}
			lines = append(lines, string(word[:cols]))
			word = word[cols:]
		}
		switch {
		case len(word) == 0:
		case len(cur) == 0:
			cur = word
		case len(cur)+1+len(word) <= cols:
			cur = append(append(cur, ' '), word...)
		default:
			lines = append(lines, string(cur))
			cur = word
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}

// lineWidth is the unscaled pixel width of s.
func lineWidth(s string) int {
	return utf8.RuneCountInString(s) * glyphWidth
}
