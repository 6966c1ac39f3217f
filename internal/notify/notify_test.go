package notify

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battle-nav/internal/nav"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	fail     error
	drained  bool
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	if f.fail != nil {
		return f.fail
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func sampleChange() nav.CostChange {
	return nav.CostChange{
		Kind:     nav.ChangeMoved,
		Obstacle: "crate",
		Revision: 42,
		Cells: []nav.Cell{
			{Index: nav.GridIndex{X: 2, Y: 2}, Cost: 1},
			{Index: nav.GridIndex{X: 0, Y: 1}, Cost: 255},
		},
	}
}

func TestEncodeChange(t *testing.T) {
	data, err := EncodeChange(sampleChange(), "node-a")
	require.NoError(t, err)

	var msg ChangeMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "moved", msg.Kind)
	assert.Equal(t, "crate", msg.ObstacleID)
	assert.Equal(t, uint64(42), msg.Revision)
	assert.Equal(t, []CellMessage{{X: 2, Y: 2, Cost: 1}, {X: 0, Y: 1, Cost: 255}}, msg.Cells)
	assert.Equal(t, "node-a", msg.NodeID)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestPublisherForwardsChanges(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "", "node-a")

	var sink nav.ChangeSink = p
	sink.Publish(sampleChange())

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "nav.cost.changed", conn.subjects[0])
	assert.Equal(t, int64(1), p.Stats()["published"])

	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
}

func TestPublisherCountsErrors(t *testing.T) {
	conn := &fakeConn{fail: errors.New("nats: connection closed")}
	p := NewPublisher(conn, "arena.cost", "")

	p.Publish(sampleChange())
	p.Publish(sampleChange())

	assert.Equal(t, int64(2), p.Stats()["errors"])
	assert.Zero(t, p.Stats()["published"])
}

func TestTrackerPublishesThroughNATS(t *testing.T) {
	conn := &fakeConn{}
	g, err := nav.NewGrid(nav.Size{X: 3, Y: 3}, 1, nil)
	require.NoError(t, err)
	tr := nav.NewTracker(g, NewPublisher(conn, "arena.cost", "node-a"))

	require.NoError(t, tr.Add(nav.Obstacle{
		ID:         "rock",
		Transform:  nav.NewTransform(nav.Vec3{}),
		HalfExtent: &nav.Vec3{X: 0.2, Z: 0.2},
	}))

	require.Len(t, conn.payloads, 1)
	var msg ChangeMessage
	require.NoError(t, json.Unmarshal(conn.payloads[0], &msg))
	assert.Equal(t, "added", msg.Kind)
	assert.Equal(t, []CellMessage{{X: 1, Y: 1, Cost: 255}}, msg.Cells)
}
