package opengraph

import (
	"errors"
	"fmt"
)

// ErrElementNotFound is returned by editor operations for unknown ids.
var ErrElementNotFound = errors.New("element not found")

// MoveElement positions an element, keeping it fully on the canvas when it
// fits.
func MoveElement(t *Template, id string, x, y int) error {
	el := t.Element(id)
	if el == nil {
		return ErrElementNotFound
	}
	el.X = clamp(x, 0, max(0, t.Width-el.W))
	el.Y = clamp(y, 0, max(0, t.Height-el.H))
	return nil
}

// ResizeElement sets an element's size. The box is kept within the canvas.
func ResizeElement(t *Template, id string, w, h int) error {
	el := t.Element(id)
	if el == nil {
		return ErrElementNotFound
	}
	if w <= 0 || h <= 0 {
		return invalid("w", "element size must be positive")
	}
	el.W = clamp(w, 1, max(1, t.Width-el.X))
	el.H = clamp(h, 1, max(1, t.Height-el.Y))
	return nil
}

// BringToFront paints the element above every other element.
func BringToFront(t *Template, id string) error {
	el := t.Element(id)
	if el == nil {
		return ErrElementNotFound
	}
	top := el.Z
	for _, other := range t.Elements {
		if other.ID != id && other.Z >= top {
			top = other.Z + 1
		}
	}
	el.Z = top
	return nil
}

// RemoveElement deletes an element.
func RemoveElement(t *Template, id string) error {
	for i := range t.Elements {
		if t.Elements[i].ID == id {
			t.Elements = append(t.Elements[:i], t.Elements[i+1:]...)
			return nil
		}
	}
	return ErrElementNotFound
}

// Editor operations accepted by ElementPatch.
const (
	OpMove   = "move"
	OpResize = "resize"
	OpFront  = "front"
	OpRemove = "remove"
	OpUpdate = "update"
)

// ElementPatch is one canvas edit. Text, Color, FontScale and Align apply to
// OpUpdate only.
type ElementPatch struct {
	Op        string   `json:"op" binding:"required"`
	X         int      `json:"x"`
	Y         int      `json:"y"`
	W         int      `json:"w"`
	H         int      `json:"h"`
	Text      *string  `json:"text,omitempty"`
	Color     *string  `json:"color,omitempty"`
	FontScale *float64 `json:"font_scale,omitempty"`
	Align     *string  `json:"align,omitempty"`
	Src       *string  `json:"src,omitempty"`
}

// Apply runs the patch against the element and revalidates the template.
func (p ElementPatch) Apply(t *Template, id string) error {
	var err error
	switch p.Op {
	case OpMove:
		err = MoveElement(t, id, p.X, p.Y)
	case OpResize:
		err = ResizeElement(t, id, p.W, p.H)
	case OpFront:
		err = BringToFront(t, id)
	case OpRemove:
		err = RemoveElement(t, id)
	case OpUpdate:
		err = p.update(t, id)
	default:
		return invalid("op", "unknown operation %q", p.Op)
	}
	if err != nil {
		return err
	}
	return Validate(t)
}

func (p ElementPatch) update(t *Template, id string) error {
	el := t.Element(id)
	if el == nil {
		return ErrElementNotFound
	}
	if p.Text != nil {
		if el.Kind != KindText {
			return invalid("text", "only text elements have text")
		}
		el.Text = *p.Text
	}
	if p.Color != nil {
		el.Color = *p.Color
	}
	if p.FontScale != nil {
		el.FontScale = *p.FontScale
	}
	if p.Align != nil {
		el.Align = *p.Align
	}
	if p.Src != nil {
		if el.Kind != KindImage {
			return invalid("src", "only image elements have a source")
		}
		el.Src = *p.Src
	}
	return nil
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// String describes the patch for logs.
func (p ElementPatch) String() string {
	switch p.Op {
	case OpMove:
		return fmt.Sprintf("move to %d,%d", p.X, p.Y)
	case OpResize:
		return fmt.Sprintf("resize to %dx%d", p.W, p.H)
	}
	return p.Op
}
