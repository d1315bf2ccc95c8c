package connect_test

import (
	"testing"

	"github.com/nbonamy/tidal-streamer/internal/connect"
	"github.com/nbonamy/tidal-streamer/internal/tidal"
)

func TestStatusSnapshotIsolation(t *testing.T) {
	status := connect.NewStatus()
	queue, list := makeQueue(3, 1)
	status.SetQueue(queue, list.Items, 1)

	snapshot := status.Snapshot()

	// Mutating the live mirror must not leak into the snapshot.
	status.SetPosition(2)
	status.Reset()

	if snapshot.Position != 1 {
		t.Errorf("snapshot position changed to %d", snapshot.Position)
	}
	if snapshot.Queue == nil || snapshot.Queue.ID != "queue-1" {
		t.Errorf("snapshot queue changed: %+v", snapshot.Queue)
	}
	if len(snapshot.Tracks) != 3 {
		t.Errorf("snapshot tracks changed: %d", len(snapshot.Tracks))
	}

	// And mutating the snapshot must not leak back.
	snapshot.Queue.Items[0].MediaID = 9999
	status.SetQueue(queue, list.Items, 0)
	if got, _ := status.ItemAt(0); got.MediaID == 9999 {
		t.Error("snapshot mutation leaked into the mirror")
	}
}

func TestStatusSetQueueRewindsProgress(t *testing.T) {
	status := connect.NewStatus()
	status.SetPlayerStatus(connect.StatePlaying, 5000)

	queue, list := makeQueue(2, 0)
	status.SetQueue(queue, list.Items, 0)

	if got := status.Snapshot().Progress; got != 0 {
		t.Errorf("expected progress rewound, got %d", got)
	}
}

func TestStatusMediaChanged(t *testing.T) {
	status := connect.NewStatus()
	queue, list := makeQueue(4, 0)
	status.SetQueue(queue, list.Items, 0)
	status.SetPlayerStatus(connect.StatePlaying, 30000)

	status.MediaChanged(1002)

	snapshot := status.Snapshot()
	if snapshot.Position != 2 {
		t.Errorf("expected position 2, got %d", snapshot.Position)
	}
	if snapshot.Progress != 0 {
		t.Errorf("expected progress 0, got %d", snapshot.Progress)
	}

	// An untracked media id rewinds progress but keeps the position.
	status.SetPlayerStatus(connect.StatePlaying, 1000)
	status.MediaChanged(555)
	snapshot = status.Snapshot()
	if snapshot.Position != 2 || snapshot.Progress != 0 {
		t.Errorf("unexpected mirror after foreign media: %+v", snapshot)
	}
}

func TestStatusBoundsChecks(t *testing.T) {
	status := connect.NewStatus()

	if _, ok := status.TrackAt(0); ok {
		t.Error("TrackAt on empty mirror should miss")
	}
	if _, ok := status.ItemAt(0); ok {
		t.Error("ItemAt on empty mirror should miss")
	}

	queue, list := makeQueue(2, 0)
	status.SetQueue(queue, list.Items, 0)

	if _, ok := status.TrackAt(-1); ok {
		t.Error("negative index should miss")
	}
	if _, ok := status.TrackAt(2); ok {
		t.Error("past-the-end index should miss")
	}
	track, ok := status.TrackAt(1)
	if !ok || track.Item.ID != 1001 {
		t.Errorf("expected track 1001, got %+v ok=%v", track, ok)
	}
}

func TestStatusReset(t *testing.T) {
	status := connect.NewStatus()
	queue, list := makeQueue(2, 1)
	status.SetQueue(queue, list.Items, 1)
	status.SetPlayerStatus(connect.StatePlaying, 100)
	status.SetVolume(connect.Volume{Level: 80})

	status.Reset()

	snapshot := status.Snapshot()
	if snapshot.Queue != nil || len(snapshot.Tracks) != 0 {
		t.Errorf("queue not cleared: %+v", snapshot)
	}
	if snapshot.State != connect.StateStopped || snapshot.Position != 0 || snapshot.Progress != 0 {
		t.Errorf("playback state not cleared: %+v", snapshot)
	}
	// Volume survives a reset: it is a device property, not queue state.
	if snapshot.Volume.Level != 80 {
		t.Errorf("volume should survive reset, got %+v", snapshot.Volume)
	}
}

func TestQueueCloneIsDeep(t *testing.T) {
	queue, _ := makeQueue(3, 0)
	clone := queue.Clone()

	clone.Items[0].MediaID = 42
	clone.ETag = "v2"

	if queue.Items[0].MediaID == 42 {
		t.Error("clone shares item storage with the original")
	}
	if queue.ETag != "v1" {
		t.Error("clone shares scalar state with the original")
	}

	var nilQueue *tidal.Queue
	if nilQueue.Clone() != nil {
		t.Error("nil queue should clone to nil")
	}
}
