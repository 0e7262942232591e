package docstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePatch(t *testing.T, from, to string) string {
	t.Helper()
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(from, to, false)
	patches := dmp.PatchMake(from, diffs)
	return dmp.PatchToText(patches)
}

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")

	s := New(path, 50)
	require.NoError(t, s.Load())

	assert.Equal(t, defaultContent, s.Snapshot())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, defaultContent, string(data))
}

func TestLoadReplacesOversizeWithBanner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, make([]byte, 2*1024*1024+1), 0o644))

	s := New(path, 1)
	require.NoError(t, s.Load())

	assert.Equal(t, oversizeBanner, s.Snapshot())
}

func TestApplyPatchNoChange(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "doc.txt"), 50)
	s.content = "<p>hi</p>"

	patch := makePatch(t, "<p>hi</p>", "<p>hi</p>")
	outcome, _, _ := s.ApplyPatch(patch)
	assert.Equal(t, NoChange, outcome)
}

func TestApplyPatchAppliesChange(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "doc.txt"), 50)
	s.content = "<p>hi</p>"

	patch := makePatch(t, "<p>hi</p>", "<p>hi!</p>")
	outcome, size, _ := s.ApplyPatch(patch)
	require.Equal(t, Applied, outcome)
	assert.Equal(t, "<p>hi!</p>", s.Snapshot())
	assert.Equal(t, len("<p>hi!</p>"), size)
	assert.True(t, s.Dirty())
}

func TestApplyPatchFailsOnCorruptPatch(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "doc.txt"), 50)
	s.content = "<p>hi</p>"

	outcome, _, reason := s.ApplyPatch("not a patch at all")
	assert.Equal(t, Failed, outcome)
	assert.NotEmpty(t, reason)
	assert.Equal(t, "<p>hi</p>", s.Snapshot())
}

func TestApplyPatchRejectsOversizeResult(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "doc.txt"), 0)
	s.maxBytes = 5
	s.content = "ab"

	patch := makePatch(t, "ab", "abcdefgh")
	outcome, _, reason := s.ApplyPatch(patch)
	assert.Equal(t, Rejected, outcome)
	assert.Contains(t, reason, "size")
	assert.Equal(t, "ab", s.Snapshot())
}

func TestSaveSyncThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")

	s := New(path, 50)
	s.content = "<p>round trip</p>"
	require.NoError(t, s.SaveSync())

	s2 := New(path, 50)
	require.NoError(t, s2.Load())
	assert.Equal(t, "<p>round trip</p>", s2.Snapshot())
}
