package device

import "fmt"

// Key identifies a keyboard key in the runtime's vocabulary.
type Key string

// Special and modifier keys.
const (
	KeyEnter     Key = "enter"
	KeyTab       Key = "tab"
	KeySpace     Key = "space"
	KeyBackspace Key = "backspace"
	KeyDelete    Key = "delete"
	KeyEscape    Key = "escape"
	KeyHome      Key = "home"
	KeyEnd       Key = "end"
	KeyPageUp    Key = "pageup"
	KeyPageDown  Key = "pagedown"

	KeyUpArrow    Key = "up"
	KeyDownArrow  Key = "down"
	KeyLeftArrow  Key = "left"
	KeyRightArrow Key = "right"

	KeyShift Key = "shift"
	KeyCtrl  Key = "ctrl"
	KeyAlt   Key = "alt"
	KeyMeta  Key = "meta"
)

// keysymSpecial maps X11/RFB keysyms for non-printable keys to runtime keys.
// Left/right modifier variants collapse to the generic key.
var keysymSpecial = map[uint32]Key{
	0xff0d: KeyEnter,
	0xff09: KeyTab,
	0xff08: KeyBackspace,
	0xffff: KeyDelete,
	0xff1b: KeyEscape,
	0xff50: KeyHome,
	0xff57: KeyEnd,
	0xff55: KeyPageUp,
	0xff56: KeyPageDown,
	0xff51: KeyLeftArrow,
	0xff52: KeyUpArrow,
	0xff53: KeyRightArrow,
	0xff54: KeyDownArrow,
	0xffe1: KeyShift,
	0xffe2: KeyShift,
	0xffe3: KeyCtrl,
	0xffe4: KeyCtrl,
	0xffe9: KeyAlt,
	0xffea: KeyAlt,
	0xffeb: KeyMeta,
	0xffec: KeyMeta,
	0xff8d: KeyEnter, // keypad enter
}

const (
	keysymF1  = 0xffbe
	keysymF12 = 0xffc9
)

// KeyFromKeysym maps an X11/RFB keysym to a runtime key. The second result
// is false for keysyms outside the runtime's key set; callers drop those.
func KeyFromKeysym(code uint32) (Key, bool) {
	if key, ok := keysymSpecial[code]; ok {
		return key, true
	}
	if code >= keysymF1 && code <= keysymF12 {
		return Key(fmt.Sprintf("f%d", code-keysymF1+1)), true
	}
	// Printable Latin-1 range. Uppercase letters fold to their lowercase key.
	if code >= 0x20 && code <= 0x7e {
		c := byte(code)
		if c == ' ' {
			return KeySpace, true
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		return Key([]byte{c}), true
	}
	return "", false
}
