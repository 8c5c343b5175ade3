// Package opengraph renders Open Graph preview images from templates of
// positioned text, rectangle and image elements.
package opengraph

import (
	"fmt"
	"image/color"
	"net/url"
	"strconv"
	"strings"

	apierrors "github.com/zfogg/beacon/internal/errors"
)

// Default and maximum canvas sizes.
const (
	DefaultWidth  = 1200
	DefaultHeight = 630
	MaxDimension  = 4096
	MaxElements   = 64
	MaxFontScale  = 16
)

// Element kinds.
const (
	KindText  = "text"
	KindRect  = "rect"
	KindImage = "image"
)

// Text alignments.
const (
	AlignLeft   = "left"
	AlignCenter = "center"
	AlignRight  = "right"
)

// Template is a canvas with positioned elements. It is stored as JSON.
type Template struct {
	ID         string    `json:"id,omitempty"`
	OrgID      string    `json:"org_id,omitempty"`
	Name       string    `json:"name"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Background string    `json:"background"`
	Elements   []Element `json:"elements"`
}

// Element is one drawable item. Text may contain {{var}} placeholders.
type Element struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	W         int     `json:"w"`
	H         int     `json:"h"`
	Color     string  `json:"color,omitempty"`
	FontScale float64 `json:"font_scale,omitempty"`
	Align     string  `json:"align,omitempty"`
	Text      string  `json:"text,omitempty"`
	Src       string  `json:"src,omitempty"`
	Z         int     `json:"z"`
}

// ValidationError reports an invalid template field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// AsAPIError implements apierrors.Converter.
func (e *ValidationError) AsAPIError() *apierrors.APIError {
	return apierrors.ValidationError(e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate fills defaults and checks the template. Elements that lie
// entirely outside the canvas are rejected; partly visible ones are clamped
// at layout time.
func Validate(t *Template) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return invalid("name", "is required")
	}
	if t.Width == 0 && t.Height == 0 {
		t.Width, t.Height = DefaultWidth, DefaultHeight
	}
	if t.Width <= 0 || t.Height <= 0 || t.Width > MaxDimension || t.Height > MaxDimension {
		return invalid("width", "canvas must be between 1x1 and %dx%d", MaxDimension, MaxDimension)
	}
	if t.Background == "" {
		t.Background = "#ffffff"
	}
	if _, err := ParseColor(t.Background); err != nil {
		return invalid("background", "%v", err)
	}
	if len(t.Elements) > MaxElements {
		return invalid("elements", "at most %d elements are allowed", MaxElements)
	}

	seen := make(map[string]bool, len(t.Elements))
	for i := range t.Elements {
		el := &t.Elements[i]
		field := fmt.Sprintf("elements[%d]", i)
		if el.ID == "" {
			el.ID = nextElementID(t, seen)
		}
		if seen[el.ID] {
			return invalid(field+".id", "duplicate element id %q", el.ID)
		}
		seen[el.ID] = true

		if err := validateElement(el, t.Width, t.Height); err != nil {
			if ve, ok := err.(*ValidationError); ok {
				ve.Field = field + "." + ve.Field
			}
			return err
		}
	}
	return nil
}

func nextElementID(t *Template, seen map[string]bool) string {
	taken := make(map[string]bool, len(t.Elements))
	for _, el := range t.Elements {
		taken[el.ID] = true
	}
	for n := 1; ; n++ {
		id := "el-" + strconv.Itoa(n)
		if !taken[id] && !seen[id] {
			return id
		}
	}
}

func validateElement(el *Element, width, height int) error {
	switch el.Kind {
	case KindText:
		if el.Color == "" {
			el.Color = "#000000"
		}
		if el.FontScale == 0 {
			el.FontScale = 1
		}
		if el.FontScale < 1 || el.FontScale > MaxFontScale {
			return invalid("font_scale", "must be between 1 and %d", MaxFontScale)
		}
		switch el.Align {
		case "":
			el.Align = AlignLeft
		case AlignLeft, AlignCenter, AlignRight:
		default:
			return invalid("align", "unknown alignment %q", el.Align)
		}
	case KindRect:
		if el.Color == "" {
			el.Color = "#000000"
		}
	case KindImage:
		u, err := url.Parse(el.Src)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("src", "must be an absolute http(s) URL")
		}
	default:
		return invalid("kind", "unknown element kind %q", el.Kind)
	}

	if el.Color != "" {
		if _, err := ParseColor(el.Color); err != nil {
			return invalid("color", "%v", err)
		}
	}
	if el.W <= 0 || el.H <= 0 {
		return invalid("w", "element size must be positive")
	}
	if el.X >= width || el.Y >= height || el.X+el.W <= 0 || el.Y+el.H <= 0 {
		return invalid("x", "element is outside the canvas")
	}
	return nil
}

// ParseColor parses #rgb or #rrggbb.
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == len(s) {
		return color.RGBA{}, fmt.Errorf("color %q must start with #", s)
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("color %q must be #rgb or #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("color %q is not hexadecimal", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// Element returns the element with id, or nil.
func (t *Template) Element(id string) *Element {
	for i := range t.Elements {
		if t.Elements[i].ID == id {
			return &t.Elements[i]
		}
	}
	return nil
}

// Vars lists the placeholder names used by the template's text elements.
func (t *Template) Vars() []string {
	var out []string
	seen := map[string]bool{}
	for _, el := range t.Elements {
		if el.Kind != KindText {
			continue
		}
		for _, m := range placeholder.FindAllStringSubmatch(el.Text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				out = append(out, m[1])
			}
		}
	}
	return out
}
