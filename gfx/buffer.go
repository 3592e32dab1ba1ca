package gfx

import "strings"

// Buffer is an in-memory Displayer. Display only counts commits.
type Buffer struct {
	W, H    int16
	pix     []bool
	Commits int
}

func NewBuffer(w, h int16) *Buffer {
	return &Buffer{W: w, H: h, pix: make([]bool, int(w)*int(h))}
}

func (b *Buffer) Size() (int16, int16) { return b.W, b.H }

func (b *Buffer) SetPixel(x, y int16, on bool) {
	if x < 0 || y < 0 || x >= b.W || y >= b.H {
		return
	}
	b.pix[int(y)*int(b.W)+int(x)] = on
}

func (b *Buffer) Pixel(x, y int16) bool {
	if x < 0 || y < 0 || x >= b.W || y >= b.H {
		return false
	}
	return b.pix[int(y)*int(b.W)+int(x)]
}

func (b *Buffer) ClearBuffer() {
	for i := range b.pix {
		b.pix[i] = false
	}
}

func (b *Buffer) Display() error {
	b.Commits++
	return nil
}

// Lit counts set pixels inside the rectangle [x0,x1)×[y0,y1).
func (b *Buffer) Lit(x0, y0, x1, y1 int16) int {
	n := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			if b.Pixel(x, y) {
				n++
			}
		}
	}
	return n
}

// String renders the buffer as text, two rows per line.
func (b *Buffer) String() string {
	var sb strings.Builder
	for y := int16(0); y < b.H; y += 2 {
		for x := int16(0); x < b.W; x++ {
			top, bot := b.Pixel(x, y), b.Pixel(x, y+1)
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
