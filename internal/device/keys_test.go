package device

import "testing"

func TestKeyFromKeysym_SpecialKeys(t *testing.T) {
	cases := []struct {
		code uint32
		want Key
	}{
		{0xff0d, KeyEnter},
		{0xff09, KeyTab},
		{0xff08, KeyBackspace},
		{0xff1b, KeyEscape},
		{0xff51, KeyLeftArrow},
		{0xff52, KeyUpArrow},
		{0xff53, KeyRightArrow},
		{0xff54, KeyDownArrow},
		{0xffe1, KeyShift},
		{0xffe2, KeyShift},
		{0xffe3, KeyCtrl},
		{0xffe9, KeyAlt},
		{0xffeb, KeyMeta},
	}
	for _, tc := range cases {
		got, ok := KeyFromKeysym(tc.code)
		if !ok {
			t.Errorf("KeyFromKeysym(%#x) not mapped, want %q", tc.code, tc.want)
			continue
		}
		if got != tc.want {
			t.Errorf("KeyFromKeysym(%#x) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestKeyFromKeysym_FunctionKeys(t *testing.T) {
	got, ok := KeyFromKeysym(0xffbe)
	if !ok || got != "f1" {
		t.Errorf("KeyFromKeysym(0xffbe) = %q, %v, want f1", got, ok)
	}
	got, ok = KeyFromKeysym(0xffc9)
	if !ok || got != "f12" {
		t.Errorf("KeyFromKeysym(0xffc9) = %q, %v, want f12", got, ok)
	}
}

func TestKeyFromKeysym_Printable(t *testing.T) {
	got, ok := KeyFromKeysym('a')
	if !ok || got != "a" {
		t.Errorf("KeyFromKeysym('a') = %q, %v, want a", got, ok)
	}
	// Uppercase folds to the lowercase key.
	got, ok = KeyFromKeysym('A')
	if !ok || got != "a" {
		t.Errorf("KeyFromKeysym('A') = %q, %v, want a", got, ok)
	}
	got, ok = KeyFromKeysym(' ')
	if !ok || got != KeySpace {
		t.Errorf("KeyFromKeysym(' ') = %q, %v, want space", got, ok)
	}
	got, ok = KeyFromKeysym('7')
	if !ok || got != "7" {
		t.Errorf("KeyFromKeysym('7') = %q, %v, want 7", got, ok)
	}
}

func TestKeyFromKeysym_Unmapped(t *testing.T) {
	for _, code := range []uint32{0x0000, 0xfe03, 0xffffff} {
		if key, ok := KeyFromKeysym(code); ok {
			t.Errorf("KeyFromKeysym(%#x) = %q, want unmapped", code, key)
		}
	}
}

func TestButtonBits(t *testing.T) {
	if ButtonLeft.Bit() != 1 || ButtonMiddle.Bit() != 2 || ButtonRight.Bit() != 4 {
		t.Errorf("unexpected button bits: left=%d middle=%d right=%d",
			ButtonLeft.Bit(), ButtonMiddle.Bit(), ButtonRight.Bit())
	}
}

func TestParseButton(t *testing.T) {
	if b, ok := ParseButton("left"); !ok || b != ButtonLeft {
		t.Errorf("ParseButton(left) = %q, %v", b, ok)
	}
	if _, ok := ParseButton("fourth"); ok {
		t.Error("ParseButton(fourth) should fail")
	}
}
