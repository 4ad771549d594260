package canvas

import "math"

// Raster is a coarse cell grid of the visible layers. Each cell holds the
// color of the last pen stroke that crossed it, or "" when empty.
type Raster struct {
	Cols, Rows int
	Cells      [][]string
}

// Rasterize scales the board onto a cols x rows grid. Eraser strokes clear
// the cells they cross on their own layer.
func (b *Board) Rasterize(cols, rows int) Raster {
	r := Raster{Cols: cols, Rows: rows, Cells: make([][]string, rows)}
	for y := range r.Cells {
		r.Cells[y] = make([]string, cols)
	}
	if cols <= 0 || rows <= 0 {
		return r
	}

	for _, l := range b.Layers() {
		if !l.Visible {
			continue
		}
		layerCells := make(map[[2]int]string)
		for _, s := range l.Segments {
			color := s.Color
			if s.Tool == ToolEraser {
				color = ""
			}
			r.line(s, func(x, y int) {
				layerCells[[2]int{x, y}] = color
			})
		}
		for pos, color := range layerCells {
			if color != "" {
				r.Cells[pos[1]][pos[0]] = color
			}
		}
	}
	return r
}

// CellToCanvas maps a raster cell to the canvas coordinate at its center.
func (r Raster) CellToCanvas(col, row int) (float64, float64) {
	x := (float64(col) + 0.5) * Width / float64(r.Cols)
	y := (float64(row) + 0.5) * Height / float64(r.Rows)
	return x, y
}

// CanvasToCell maps a canvas coordinate to the raster cell containing it.
func (r Raster) CanvasToCell(x, y float64) (int, int) {
	x = math.Min(math.Max(x, 0), Width)
	y = math.Min(math.Max(y, 0), Height)
	cx := min(int(math.Floor(x*float64(r.Cols)/Width)), r.Cols-1)
	cy := min(int(math.Floor(y*float64(r.Rows)/Height)), r.Rows-1)
	return cx, cy
}

// line walks the cells between a stroke's endpoints (Bresenham).
func (r Raster) line(s Stroke, plot func(x, y int)) {
	x0, y0 := r.CanvasToCell(s.X1, s.Y1)
	x1, y1 := r.CanvasToCell(s.X2, s.Y2)

	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	errAcc := dx + dy

	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * errAcc
		if e2 >= dy {
			errAcc += dy
			x0 += sx
		}
		if e2 <= dx {
			errAcc += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
