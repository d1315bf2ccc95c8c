package connect

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Notification kinds sent by connect devices.
const (
	kindSessionStarted      = "notifySessionStarted"
	kindSessionEnded        = "notifySessionEnded"
	kindDeviceStatusChanged = "notifyDeviceStatusChanged"
	kindQueueChanged        = "notifyQueueChanged"
	kindQueueItemsChanged   = "notifyQueueItemsChanged"
	kindMediaChanged        = "notifyMediaChanged"
	kindPlayerStatusChanged = "notifyPlayerStatusChanged"
	kindRequestResult       = "notifyRequestResult"
)

// Notification is one inbound protocol message. The concrete type encodes
// the message kind; unknown kinds decode to Unknown so a new device firmware
// never breaks the dispatch loop.
type Notification interface {
	notification()
}

// SessionStarted announces the remote-assigned session id.
type SessionStarted struct {
	SessionID string `json:"sessionId"`
}

// SessionEnded is a forced disconnect.
type SessionEnded struct{}

// DeviceStatusChanged reports a volume change.
type DeviceStatusChanged struct {
	Volume Volume `json:"volume"`
}

// QueueChanged reports which queue currently owns the device.
type QueueChanged struct {
	QueueID string `json:"queueId"`
}

// QueueItemsChanged reports a server-side change to the queue's item list.
type QueueItemsChanged struct {
	QueueID string `json:"queueId"`
}

// MediaChanged reports the currently playing media.
type MediaChanged struct {
	ItemID  string `json:"itemId"`
	MediaID int    `json:"mediaId"`
}

// PlayerStatusChanged reports playback state and progress.
type PlayerStatusChanged struct {
	State    PlayState `json:"state"`
	Progress int       `json:"progress"`
}

// RequestResult acknowledges an earlier command. Acknowledgements are
// unobserved by design: commands are fire-and-forget.
type RequestResult struct {
	RequestID int    `json:"requestId"`
	Status    string `json:"status"`
}

// DeviceError is any notification whose kind ends in Error. Logged, never
// fatal to the session.
type DeviceError struct {
	Kind string
	Raw  json.RawMessage
}

// Unknown is the catch-all for unrecognized notification kinds.
type Unknown struct {
	Kind string
	Raw  json.RawMessage
}

func (SessionStarted) notification()      {}
func (SessionEnded) notification()        {}
func (DeviceStatusChanged) notification() {}
func (QueueChanged) notification()        {}
func (QueueItemsChanged) notification()   {}
func (MediaChanged) notification()        {}
func (PlayerStatusChanged) notification() {}
func (RequestResult) notification()       {}
func (DeviceError) notification()         {}
func (Unknown) notification()             {}

// decodeNotification parses one inbound frame into its notification type.
func decodeNotification(data []byte) (Notification, error) {
	var envelope struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}

	switch envelope.Command {
	case kindSessionStarted:
		var n SessionStarted
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("parse %s: %w", envelope.Command, err)
		}
		return n, nil
	case kindSessionEnded:
		return SessionEnded{}, nil
	case kindDeviceStatusChanged:
		var n DeviceStatusChanged
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("parse %s: %w", envelope.Command, err)
		}
		return n, nil
	case kindQueueChanged:
		var n QueueChanged
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("parse %s: %w", envelope.Command, err)
		}
		return n, nil
	case kindQueueItemsChanged:
		var n QueueItemsChanged
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("parse %s: %w", envelope.Command, err)
		}
		return n, nil
	case kindMediaChanged:
		var n MediaChanged
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("parse %s: %w", envelope.Command, err)
		}
		return n, nil
	case kindPlayerStatusChanged:
		var n PlayerStatusChanged
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("parse %s: %w", envelope.Command, err)
		}
		return n, nil
	case kindRequestResult:
		var n RequestResult
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("parse %s: %w", envelope.Command, err)
		}
		return n, nil
	default:
		if strings.HasSuffix(envelope.Command, "Error") {
			return DeviceError{Kind: envelope.Command, Raw: json.RawMessage(data)}, nil
		}
		return Unknown{Kind: envelope.Command, Raw: json.RawMessage(data)}, nil
	}
}
