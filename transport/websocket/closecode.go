package websocket

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

var closeReasons = map[int]string{
	websocket.CloseNormalClosure:           "closed normally",
	websocket.CloseGoingAway:               "server went away",
	websocket.CloseProtocolError:           "protocol error",
	websocket.CloseUnsupportedData:         "server rejected data",
	websocket.CloseNoStatusReceived:        "disconnected without status",
	websocket.CloseAbnormalClosure:         "connection closed abnormally",
	websocket.CloseInvalidFramePayloadData: "malformed message payload",
	websocket.ClosePolicyViolation:         "policy violation",
	websocket.CloseMessageTooBig:           "message too large",
	websocket.CloseMandatoryExtension:      "handshake extension failed",
	websocket.CloseInternalServerErr:       "server hit an unexpected condition",
	websocket.CloseTLSHandshake:            "TLS handshake failure",
}

// CloseReason maps a close code to a human readable reason.
func CloseReason(code int) string {
	if r, ok := closeReasons[code]; ok {
		return r
	}
	return fmt.Sprintf("unknown(%d)", code)
}

// closeCodeOf extracts the close code from a read error. Anything that is not
// a close frame counts as an abnormal closure.
func closeCodeOf(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}
