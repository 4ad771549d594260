package canvas

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

// CursorColors is the palette participants pick their cursor color from.
var CursorColors = []string{
	"#FF1744", "#00E676", "#2979FF", "#FF9100",
	"#E040FB", "#00E5FF", "#FFEA00", "#FF3D00",
}

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// RandomColor picks a palette color.
func RandomColor() string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(CursorColors))))
	if err != nil {
		return CursorColors[0]
	}
	return CursorColors[n.Int64()]
}

// ValidColor reports whether s is a #RRGGBB color.
func ValidColor(s string) bool {
	return hexColor.MatchString(s)
}
