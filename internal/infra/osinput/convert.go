package osinput

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

// Wheel directions reported by the hook.
const (
	wheelVertical   = 3
	wheelHorizontal = 4
)

// buttonName maps hook button numbers to domain buttons. Side buttons keep a
// name so callers can log them but they fail MouseButton.Valid.
func buttonName(b uint16) domain.MouseButton {
	switch b {
	case 1:
		return domain.ButtonLeft
	case 2:
		return domain.ButtonRight
	case 3:
		return domain.ButtonMiddle
	case 4:
		return "x1"
	case 5:
		return "x2"
	default:
		return domain.MouseButton(fmt.Sprintf("button%d", b))
	}
}

// scrollDelta converts a wheel rotation into notches. Positive dy scrolls up,
// positive dx scrolls right.
func scrollDelta(direction uint8, rotation int32) (dx, dy int) {
	if direction == wheelHorizontal {
		return int(rotation), 0
	}
	return 0, -int(rotation)
}

// keyName picks the hook's key name, falling back to the typed character.
func keyName(raw string, char rune) string {
	if name := strings.ToLower(strings.TrimSpace(raw)); name != "" && name != "undefined" {
		return name
	}
	if char == ' ' {
		return "space"
	}
	if unicode.IsPrint(char) {
		return strings.ToLower(string(char))
	}
	return ""
}

// robotKeys maps canonical key names to the injector's names where they differ.
var robotKeys = map[string]string{
	"win":   "cmd",
	"super": "cmd",
}

func robotKey(name string) string {
	name = domain.NormalizeKey(name)
	if mapped, ok := robotKeys[name]; ok {
		return mapped
	}
	return name
}

func robotButton(b domain.MouseButton) string {
	if b == domain.ButtonMiddle {
		return "center"
	}
	return string(b)
}

type point struct{ X, Y int }

// easeInOutQuad provides smooth acceleration/deceleration
func easeInOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - (-2*t+2)*(-2*t+2)/2
}

// smoothPath returns the intermediate cursor positions for a move from
// (fromX, fromY) to (toX, toY) lasting duration, one per step. The last
// point is always the target.
func smoothPath(fromX, fromY, toX, toY int, duration, step time.Duration) []point {
	if step <= 0 || duration <= step {
		return []point{{toX, toY}}
	}
	n := int(duration / step)
	path := make([]point, 0, n)
	for i := 1; i <= n; i++ {
		t := easeInOutQuad(float64(i) / float64(n))
		path = append(path, point{
			X: fromX + int(t*float64(toX-fromX)),
			Y: fromY + int(t*float64(toY-fromY)),
		})
	}
	path[n-1] = point{toX, toY}
	return path
}
