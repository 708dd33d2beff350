package registry

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func viewer(id string) Viewer {
	return Viewer{Service: "twitch", ID: id, Name: "name-" + id}
}

func TestViewerEqualIgnoresMetadata(t *testing.T) {
	a := Viewer{Service: "twitch", ID: "1", Name: "alice", Picture: "a.png"}
	b := Viewer{Service: "twitch", ID: "1", Name: "Alice!", Picture: "b.png"}
	c := Viewer{Service: "youtube", ID: "1", Name: "alice"}

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.Equal(c))
}

func TestDisplacement(t *testing.T) {
	r := New()
	v1 := viewer("v1")

	_, err := r.Assign(v1, "A1")
	require.NoError(t, err)
	displaced, err := r.Assign(v1, "A2")
	require.NoError(t, err)
	assert.Empty(t, displaced)

	_, ok := r.ByActor("A1")
	assert.False(t, ok)
	a, ok := r.ByViewer(v1.Key())
	require.True(t, ok)
	assert.Equal(t, ActorID("A2"), a.Actor)
	require.NoError(t, r.Verify())
}

func TestDisplaceOtherViewer(t *testing.T) {
	r := New()
	v1, v2 := viewer("v1"), viewer("v2")

	_, _ = r.Assign(v1, "A1")
	require.True(t, r.SetStalling(v1.Key(), true))
	displaced, err := r.Assign(v2, "A1")
	require.NoError(t, err)
	require.Len(t, displaced, 1)
	assert.True(t, displaced[0].Equal(v1))

	a1, ok := r.ByViewer(v1.Key())
	require.True(t, ok)
	assert.False(t, a1.Assigned())
	assert.False(t, a1.Stalling)

	owner, ok := r.ByActor("A1")
	require.True(t, ok)
	assert.True(t, owner.Viewer.Equal(v2))
	require.NoError(t, r.Verify())
}

func TestRemoveActor(t *testing.T) {
	r := New()
	v := viewer("v")
	_, _ = r.Assign(v, "A")

	got, ok := r.RemoveActor("A")
	require.True(t, ok)
	assert.True(t, got.Equal(v))

	a, ok := r.ByViewer(v.Key())
	require.True(t, ok)
	assert.Empty(t, a.Actor)
	_, ok = r.ByActor("A")
	assert.False(t, ok)

	_, ok = r.RemoveActor("A")
	assert.False(t, ok)
	require.NoError(t, r.Verify())
}

func TestUnassign(t *testing.T) {
	r := New()
	v := viewer("v")

	_, ok := r.Unassign(v.Key())
	assert.False(t, ok)

	_, _ = r.Assign(v, "A")
	actor, ok := r.Unassign(v.Key())
	require.True(t, ok)
	assert.Equal(t, ActorID("A"), actor)
	assert.Equal(t, 1, r.Len())

	_, _ = r.Assign(v, "A")
	_, err := r.Assign(v, "")
	require.NoError(t, err)
	_, ok = r.ByActor("A")
	assert.False(t, ok)

	_, err = r.Assign(Viewer{ID: "no-service"}, "A")
	assert.ErrorIs(t, err, ErrInvalidViewer)
}

func TestIdempotentJoin(t *testing.T) {
	r := New()
	v := viewer("v")

	a, created, err := r.SetConnected(v, true)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, a.Connected)

	_, _ = r.Assign(v, "A")
	_, _, _ = r.SetConnected(v, false)

	renamed := Viewer{Service: v.Service, ID: v.ID, Name: "new name", Picture: "p.png"}
	a, created, err = r.SetConnected(renamed, true)
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, a.Connected)
	assert.Equal(t, ActorID("A"), a.Actor)
	assert.Equal(t, "new name", a.Viewer.Name)
	assert.Equal(t, "p.png", a.Viewer.Picture)
	assert.Equal(t, 1, r.Len())
}

func TestCounters(t *testing.T) {
	r := New()
	v := viewer("v")
	_, ok := r.AddEarned(v.Key(), 5)
	assert.False(t, ok)

	_, _, _ = r.SetConnected(v, true)
	total, ok := r.AddEarned(v.Key(), 5)
	require.True(t, ok)
	assert.Equal(t, 5, total)
	total, _ = r.AddEarned(v.Key(), 2)
	assert.Equal(t, 7, total)

	now := time.Now()
	require.True(t, r.Touch(v.Key(), "job", now))
	require.True(t, r.SetGridSize(v.Key(), -3))
	require.True(t, r.SetStalling(v.Key(), true))

	a, _ := r.ByViewer(v.Key())
	assert.Equal(t, "job", a.LastCommand)
	assert.True(t, now.Equal(a.LastCommandAt))
	assert.Zero(t, a.GridSize)
	assert.False(t, a.Stalling, "unassigned viewers cannot stall")
}

func TestRecordsRestore(t *testing.T) {
	r := New()
	_, _ = r.Assign(viewer("v1"), "A1")
	_, _ = r.Assign(viewer("v2"), "A2")
	_, _, _ = r.SetConnected(viewer("idle"), true)
	_, _ = r.AddEarned(viewer("v2").Key(), 40)

	recs := r.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, ActorID("A1"), recs[0].Actor)
	assert.Equal(t, 40, recs[1].Earned)
	assert.Equal(t, "name-v2", recs[1].Viewer.Name)

	restored := New()
	require.NoError(t, restored.Restore(recs))
	assert.Equal(t, 2, restored.Len())
	a, ok := restored.ByActor("A2")
	require.True(t, ok)
	assert.Equal(t, 40, a.Earned)
	assert.False(t, a.Connected)
	require.NoError(t, restored.Verify())

	bad := append(recs, Record{Actor: "A1", Viewer: viewer("v3")}, Record{Actor: "A9"})
	err := restored.Restore(bad)
	assert.Error(t, err)
	assert.Equal(t, 2, restored.Len())
	require.NoError(t, restored.Verify())
}

func TestBijectionRandomized(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	r := New()

	viewers := make([]Viewer, 8)
	for i := range viewers {
		viewers[i] = viewer(fmt.Sprint(i))
	}
	actor := func() ActorID { return ActorID(fmt.Sprintf("A%d", rnd.Intn(6))) }

	for step := 0; step < 5000; step++ {
		v := viewers[rnd.Intn(len(viewers))]
		switch rnd.Intn(5) {
		case 0, 1:
			_, err := r.Assign(v, actor())
			require.NoError(t, err)
		case 2:
			r.Unassign(v.Key())
		case 3:
			r.RemoveActor(actor())
		case 4:
			_, _, _ = r.SetConnected(v, rnd.Intn(2) == 0)
		}
		require.NoError(t, r.Verify(), "step %d", step)

		seen := map[ActorID]ViewerKey{}
		for _, a := range r.Viewers() {
			if !a.Assigned() {
				continue
			}
			prev, dup := seen[a.Actor]
			require.False(t, dup, "actor %s bound to %s and %s", a.Actor, prev, a.Viewer.Key())
			seen[a.Actor] = a.Viewer.Key()

			back, ok := r.ByActor(a.Actor)
			require.True(t, ok)
			require.Equal(t, a.Viewer.Key(), back.Viewer.Key())
		}
		require.Len(t, r.Bindings(), len(seen))
	}
}
