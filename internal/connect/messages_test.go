package connect

import (
	"testing"
)

func TestDecodeNotification(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, n Notification)
	}{
		{
			name:  "session started",
			frame: `{"command":"notifySessionStarted","sessionId":"abc"}`,
			check: func(t *testing.T, n Notification) {
				started, ok := n.(SessionStarted)
				if !ok || started.SessionID != "abc" {
					t.Errorf("got %#v", n)
				}
			},
		},
		{
			name:  "session ended",
			frame: `{"command":"notifySessionEnded"}`,
			check: func(t *testing.T, n Notification) {
				if _, ok := n.(SessionEnded); !ok {
					t.Errorf("got %#v", n)
				}
			},
		},
		{
			name:  "device status",
			frame: `{"command":"notifyDeviceStatusChanged","volume":{"level":30,"muted":true}}`,
			check: func(t *testing.T, n Notification) {
				status, ok := n.(DeviceStatusChanged)
				if !ok || status.Volume.Level != 30 || !status.Volume.Muted {
					t.Errorf("got %#v", n)
				}
			},
		},
		{
			name:  "queue changed",
			frame: `{"command":"notifyQueueChanged","queueId":"q-9"}`,
			check: func(t *testing.T, n Notification) {
				changed, ok := n.(QueueChanged)
				if !ok || changed.QueueID != "q-9" {
					t.Errorf("got %#v", n)
				}
			},
		},
		{
			name:  "media changed",
			frame: `{"command":"notifyMediaChanged","itemId":"item-3","mediaId":77}`,
			check: func(t *testing.T, n Notification) {
				media, ok := n.(MediaChanged)
				if !ok || media.ItemID != "item-3" || media.MediaID != 77 {
					t.Errorf("got %#v", n)
				}
			},
		},
		{
			name:  "player status",
			frame: `{"command":"notifyPlayerStatusChanged","state":"PLAYING","progress":1234}`,
			check: func(t *testing.T, n Notification) {
				status, ok := n.(PlayerStatusChanged)
				if !ok || status.State != StatePlaying || status.Progress != 1234 {
					t.Errorf("got %#v", n)
				}
			},
		},
		{
			name:  "request result",
			frame: `{"command":"notifyRequestResult","requestId":4,"status":"OK"}`,
			check: func(t *testing.T, n Notification) {
				result, ok := n.(RequestResult)
				if !ok || result.RequestID != 4 {
					t.Errorf("got %#v", n)
				}
			},
		},
		{
			name:  "error suffix",
			frame: `{"command":"notifyPlaybackError","reason":"boom"}`,
			check: func(t *testing.T, n Notification) {
				devErr, ok := n.(DeviceError)
				if !ok || devErr.Kind != "notifyPlaybackError" {
					t.Errorf("got %#v", n)
				}
			},
		},
		{
			name:  "unknown kind",
			frame: `{"command":"notifyFutureThing","x":1}`,
			check: func(t *testing.T, n Notification) {
				unknown, ok := n.(Unknown)
				if !ok || unknown.Kind != "notifyFutureThing" {
					t.Errorf("got %#v", n)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := decodeNotification([]byte(tt.frame))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			tt.check(t, n)
		})
	}
}

func TestDecodeNotificationBadFrame(t *testing.T) {
	if _, err := decodeNotification([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed frame")
	}
	if _, err := decodeNotification([]byte(`{"command":"notifyMediaChanged","mediaId":"nope"}`)); err == nil {
		t.Error("expected error for mistyped payload")
	}
}
