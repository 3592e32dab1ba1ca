// Package gfx is a small monochrome drawing context for memory displays.
package gfx

import "fmt"

// Displayer is the pixel sink a Context draws into. Coordinates are in the
// display's logical (rotated) space.
type Displayer interface {
	Size() (w, h int16)
	SetPixel(x, y int16, on bool)
	ClearBuffer()
	Display() error
}

// Context holds the drawing state for one display.
type Context struct {
	d    Displayer
	font *Font
}

// New returns a context drawing into d with FontSmall selected.
func New(d Displayer) *Context {
	return &Context{d: d, font: FontSmall}
}

// Size returns the logical display size.
func (c *Context) Size() (w, h int16) { return c.d.Size() }

// Clear blanks the frame buffer.
func (c *Context) Clear() { c.d.ClearBuffer() }

// SetFont selects the font for subsequent text; nil restores FontSmall.
func (c *Context) SetFont(f *Font) {
	if f == nil {
		f = FontSmall
	}
	c.font = f
}

// Font returns the selected font.
func (c *Context) Font() *Font { return c.font }

// DrawPixel sets or clears one pixel; out-of-range pixels are ignored.
func (c *Context) DrawPixel(x, y int16, on bool) {
	w, h := c.d.Size()
	if x < 0 || y < 0 || x >= w || y >= h {
		return
	}
	c.d.SetPixel(x, y, on)
}

// DrawChar draws r with its top-left corner at (x, y) and returns the x of
// the next glyph.
func (c *Context) DrawChar(x, y int16, r rune, on bool) int16 {
	g := glyphFor(r)
	sx, sy := c.font.sx(), c.font.sy()
	for col := int16(0); col < 5; col++ {
		bits := g[col]
		for row := int16(0); row < 7; row++ {
			if bits&(1<<uint(row)) == 0 {
				continue
			}
			c.fillRect(x+col*sx, y+row*sy, sx, sy, on)
		}
	}
	return x + c.font.Advance()
}

// DrawString draws s starting at (x, y) and returns the x after the last glyph.
func (c *Context) DrawString(x, y int16, s string, on bool) int16 {
	for _, r := range s {
		x = c.DrawChar(x, y, r, on)
	}
	return x
}

// Printf formats and draws text at (x, y).
func (c *Context) Printf(x, y int16, on bool, format string, args ...any) int16 {
	return c.DrawString(x, y, fmt.Sprintf(format, args...), on)
}

// StringWidth returns the pixel width of s in the current font.
func (c *Context) StringWidth(s string) int16 {
	n := int16(0)
	for range s {
		n++
	}
	return n * c.font.Advance()
}

// DrawLine draws a line between two points (Bresenham).
func (c *Context) DrawLine(x0, y0, x1, y1 int16, on bool) {
	dx := abs16(x1 - x0)
	dy := -abs16(y1 - y0)
	sx, sy := int16(1), int16(1)
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		c.DrawPixel(x0, y0, on)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// DrawRectangle outlines the rectangle with corners (x0,y0) and (x1,y1).
func (c *Context) DrawRectangle(x0, y0, x1, y1 int16, on bool) {
	c.DrawLine(x0, y0, x1, y0, on)
	c.DrawLine(x1, y0, x1, y1, on)
	c.DrawLine(x1, y1, x0, y1, on)
	c.DrawLine(x0, y1, x0, y0, on)
}

// Update commits the frame buffer to the display.
func (c *Context) Update() error { return c.d.Display() }

func (c *Context) fillRect(x, y, w, h int16, on bool) {
	for j := int16(0); j < h; j++ {
		for i := int16(0); i < w; i++ {
			c.DrawPixel(x+i, y+j, on)
		}
	}
}

func abs16(v int16) int16 {
	if v < 0 {
		return -v
	}
	return v
}
