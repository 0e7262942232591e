package router

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkdrift/scriptorium/internal/docstore"
	"github.com/inkdrift/scriptorium/internal/protocol"
	"github.com/inkdrift/scriptorium/internal/session"
)

type fakeBroadcaster struct {
	sentTo    map[string][]*protocol.ServerMsg
	exceptAll []*protocol.ServerMsg
	all       []*protocol.ServerMsg
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{sentTo: make(map[string][]*protocol.ServerMsg)}
}

func (f *fakeBroadcaster) SendTo(connectionID string, msg *protocol.ServerMsg) {
	f.sentTo[connectionID] = append(f.sentTo[connectionID], msg)
}

func (f *fakeBroadcaster) BroadcastExcept(exceptConnectionID string, msg *protocol.ServerMsg) {
	f.exceptAll = append(f.exceptAll, msg)
}

func (f *fakeBroadcaster) BroadcastAll(msg *protocol.ServerMsg) {
	f.all = append(f.all, msg)
}

func makePatch(t *testing.T, from, to string) string {
	t.Helper()
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(from, to, false)
	patches := dmp.PatchMake(from, diffs)
	return dmp.PatchToText(patches)
}

func TestPatchRouterAppliedBroadcastsAndAcks(t *testing.T) {
	store := docstore.New(filepath.Join(t.TempDir(), "doc.txt"), 50)
	require.NoError(t, store.Load())
	registry := session.NewRegistry()
	_, err := registry.Identify("c1", "u00001", "A", "#f00")
	require.NoError(t, err)

	bcast := newFakeBroadcaster()
	r := NewPatchRouter(store, registry, bcast)

	patch := makePatch(t, docstoreDefaultContent, "<p>hi!</p>")
	r.HandleApplyPatch("c1", protocol.ApplyPatchPayload{Patch: patch})

	require.Len(t, bcast.exceptAll, 1)
	require.Len(t, bcast.sentTo["c1"], 1)
	assert.NotNil(t, bcast.sentTo["c1"][0].ContentAcknowledged)
	assert.Equal(t, "<p>hi!</p>", store.Snapshot())
}

func TestPatchRouterUnresolvedConnectionDropsSilently(t *testing.T) {
	store := docstore.New(filepath.Join(t.TempDir(), "doc.txt"), 50)
	require.NoError(t, store.Load())
	registry := session.NewRegistry()
	bcast := newFakeBroadcaster()
	r := NewPatchRouter(store, registry, bcast)

	r.HandleApplyPatch("unknown", protocol.ApplyPatchPayload{Patch: "x"})

	assert.Empty(t, bcast.sentTo)
	assert.Empty(t, bcast.exceptAll)
}

func TestPatchRouterCorruptPatchRequestsFullSync(t *testing.T) {
	store := docstore.New(filepath.Join(t.TempDir(), "doc.txt"), 50)
	require.NoError(t, store.Load())
	registry := session.NewRegistry()
	_, err := registry.Identify("c1", "u00001", "A", "#f00")
	require.NoError(t, err)

	bcast := newFakeBroadcaster()
	r := NewPatchRouter(store, registry, bcast)

	r.HandleApplyPatch("c1", protocol.ApplyPatchPayload{Patch: "not a real patch"})

	require.Len(t, bcast.sentTo["c1"], 1)
	assert.NotNil(t, bcast.sentTo["c1"][0].RequestFullSync)
	assert.Empty(t, bcast.exceptAll)
	assert.Equal(t, docstoreDefaultContent, store.Snapshot())
}

func TestPresenceRouterBroadcastsToOthersOnly(t *testing.T) {
	registry := session.NewRegistry()
	_, err := registry.Identify("c1", "u00001", "A", "#f00")
	require.NoError(t, err)

	bcast := newFakeBroadcaster()
	p := NewPresenceRouter(registry, bcast)

	p.HandleCursorMove("c1", protocol.CursorMovePayload{X: 1, Y: 2, Height: 10})

	require.Len(t, bcast.exceptAll, 1)
	move := bcast.exceptAll[0].CursorMove
	require.NotNil(t, move)
	assert.Equal(t, "u00001", move.UserID)
	assert.Equal(t, "A", move.Name)
}

func TestPresenceRouterDropsNonFiniteCoordinates(t *testing.T) {
	registry := session.NewRegistry()
	_, err := registry.Identify("c1", "u00001", "A", "#f00")
	require.NoError(t, err)

	bcast := newFakeBroadcaster()
	p := NewPresenceRouter(registry, bcast)

	p.HandleCursorMove("c1", protocol.CursorMovePayload{X: 1, Y: 2, Height: math.NaN()})
	assert.Empty(t, bcast.exceptAll)
}

const docstoreDefaultContent = "<p></p>"
