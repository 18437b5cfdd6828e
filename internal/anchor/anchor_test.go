package anchor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoot_OrderIndependent(t *testing.T) {
	r1 := Root([]string{"aaa", "bbb", "ccc"})
	r2 := Root([]string{"ccc", "bbb", "aaa"})
	assert.Equal(t, r1, r2)
}

func TestAnchorDay_CountAndStableRoot(t *testing.T) {
	a1 := AnchorDay("2026-02-19", []string{"aaa", "bbb", "ccc"})
	a2 := AnchorDay("2026-02-19", []string{"ccc", "bbb", "aaa"})
	assert.Equal(t, 3, a1.Count)
	assert.Equal(t, a1.Root, a2.Root)
	// GeneratedAt may differ between calls; root must not.
}

func TestRoot_EmptyInput(t *testing.T) {
	root := Root(nil)
	assert.NotEmpty(t, root)
	assert.Equal(t, root, Root([]string{}))
}

func TestRebuildAnchor_MismatchReported(t *testing.T) {
	cids := []string{"aaa", "bbb", "ccc"}
	good := Root(cids)
	result := RebuildAnchor("2026-02-19", cids, good)
	assert.True(t, result.OK)

	bad := RebuildAnchor("2026-02-19", cids, "not-the-real-root")
	assert.False(t, bad.OK)
	assert.Equal(t, "anchor root mismatch", bad.Reason)
}

func TestRoot_SingleLeaf(t *testing.T) {
	root := Root([]string{"onlyone"})
	assert.Equal(t, hexBlake3([]byte("onlyone")), root)
}
