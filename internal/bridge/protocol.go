package bridge

import "errors"

// errAuthFailed reports a failed password handshake.
var errAuthFailed = errors.New("bridge: authentication failed")

// Wire messages for the display protocol. Frames travel as binary
// websocket messages carrying the encoded image; everything else is JSON
// text.

// clientMessage is any client-originated JSON message.
type clientMessage struct {
	Type     string `json:"type"`
	Password string `json:"password,omitempty"`

	// Key events.
	Code    uint32 `json:"code,omitempty"`
	Pressed bool   `json:"pressed,omitempty"`

	// Pointer events. Buttons is an absolute mask, one bit per button.
	X       int   `json:"x,omitempty"`
	Y       int   `json:"y,omitempty"`
	Buttons uint8 `json:"buttons,omitempty"`

	// Clipboard push, honored only when the server allows clipboard.
	Text string `json:"text,omitempty"`
}

const (
	msgAuth      = "auth"
	msgKey       = "key"
	msgPointer   = "pointer"
	msgClipboard = "clipboard"
)

// serverMessage is a server-originated JSON control message. The hello
// variant advertises the display geometry, frame encoding, compression
// level, and whether the server honors input and resize requests.
type serverMessage struct {
	Type        string `json:"type"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
	Compression int    `json:"compression,omitempty"`
	ViewOnly    bool   `json:"view_only,omitempty"`
	Resize      bool   `json:"resize,omitempty"`
	Error       string `json:"error,omitempty"`
}

const (
	msgHello = "hello"
	msgReady = "ready"
	msgError = "error"
)
