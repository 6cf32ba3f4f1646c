package device

// Button identifies a mouse button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonMiddle Button = "middle"
	ButtonRight  Button = "right"
)

// Buttons lists all known buttons in wire-bit order.
var Buttons = []Button{ButtonLeft, ButtonMiddle, ButtonRight}

// ParseButton converts a wire/config string to a Button.
func ParseButton(s string) (Button, bool) {
	switch Button(s) {
	case ButtonLeft, ButtonMiddle, ButtonRight:
		return Button(s), true
	}
	return "", false
}

// Bit returns the button's position in a pointer-event button mask.
func (b Button) Bit() uint8 {
	switch b {
	case ButtonLeft:
		return 1 << 0
	case ButtonMiddle:
		return 1 << 1
	case ButtonRight:
		return 1 << 2
	}
	return 0
}
