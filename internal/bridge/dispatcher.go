package bridge

import (
	"github.com/commandAGI/deviced/internal/device"
	"github.com/commandAGI/deviced/internal/session"
)

// Dispatcher is the fixed set of callback slots the bridge feeds decoded
// viewer input into. Each slot is bound once at construction to a closure
// that routes through Controller.Dispatch, so remote input and
// programmatic calls share identical retry and state-machine semantics.
type Dispatcher struct {
	OnMouseMove  func(x, y int) error
	OnMouseClick func(x, y int, button device.Button) error
	OnMouseDown  func(button device.Button) error
	OnMouseUp    func(button device.Button) error
	OnKeyPress   func(key device.Key) error
	OnKeyDown    func(key device.Key) error
	OnKeyUp      func(key device.Key) error
}

// NewDispatcher binds every slot to the session controller and its backend.
func NewDispatcher(ctrl *session.Controller, backend device.Backend) *Dispatcher {
	return &Dispatcher{
		OnMouseMove: func(x, y int) error {
			_, err := ctrl.Dispatch("move_mouse", func() error {
				return backend.MoveMouse(x, y, 0)
			})
			return err
		},
		OnMouseClick: func(x, y int, button device.Button) error {
			// Click is the composite the runtime performs for a
			// programmatic click: position, press, release.
			_, err := ctrl.Dispatch("mouse_click", func() error {
				if err := backend.MoveMouse(x, y, 0); err != nil {
					return err
				}
				if err := backend.MouseButtonDown(button); err != nil {
					return err
				}
				return backend.MouseButtonUp(button)
			})
			return err
		},
		OnMouseDown: func(button device.Button) error {
			_, err := ctrl.Dispatch("mouse_button_down", func() error {
				return backend.MouseButtonDown(button)
			})
			return err
		},
		OnMouseUp: func(button device.Button) error {
			_, err := ctrl.Dispatch("mouse_button_up", func() error {
				return backend.MouseButtonUp(button)
			})
			return err
		},
		OnKeyPress: func(key device.Key) error {
			_, err := ctrl.Dispatch("key_press", func() error {
				if err := backend.KeyDown(key); err != nil {
					return err
				}
				return backend.KeyUp(key)
			})
			return err
		},
		OnKeyDown: func(key device.Key) error {
			_, err := ctrl.Dispatch("key_down", func() error {
				return backend.KeyDown(key)
			})
			return err
		},
		OnKeyUp: func(key device.Key) error {
			_, err := ctrl.Dispatch("key_up", func() error {
				return backend.KeyUp(key)
			})
			return err
		},
	}
}
