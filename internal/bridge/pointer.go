package bridge

import "github.com/commandAGI/deviced/internal/device"

// buttonState tracks which buttons one connection currently holds down.
// It is owned exclusively by that connection's input loop and dies with
// the connection.
type buttonState struct {
	pressed map[device.Button]bool
}

func newButtonState() *buttonState {
	return &buttonState{pressed: make(map[device.Button]bool)}
}

func (s *buttonState) mask() uint8 {
	var m uint8
	for _, b := range device.Buttons {
		if s.pressed[b] {
			m |= b.Bit()
		}
	}
	return m
}

func (s *buttonState) set(b device.Button, pressed bool) {
	s.pressed[b] = pressed
}

// buttonEdge is one edge-triggered button transition derived from a
// pointer-event mask diff.
type buttonEdge struct {
	Button  device.Button
	Pressed bool
}

// diffButtons compares two button masks and returns the edges between
// them, in wire-bit order (left, middle, right). Steady-state bits emit
// nothing. The diff is pure so edge detection is testable without a live
// connection.
func diffButtons(prev, now uint8) []buttonEdge {
	var edges []buttonEdge
	for _, b := range device.Buttons {
		bit := b.Bit()
		was := prev&bit != 0
		is := now&bit != 0
		if was == is {
			continue
		}
		edges = append(edges, buttonEdge{Button: b, Pressed: is})
	}
	return edges
}
