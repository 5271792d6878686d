package lfs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeMatcherTracksGlobPatterns(t *testing.T) {
	src := strings.Join([]string{
		"*.bin filter=lfs diff=lfs merge=lfs -text",
		"assets/** filter=lfs diff=lfs merge=lfs -text",
		"*.md diff=markdown",
	}, "\n")
	m, err := NewAttributeMatcher(strings.NewReader(src))
	require.NoError(t, err)

	assert.True(t, m.Tracked("video.bin"))
	assert.True(t, m.Tracked("dir/video.bin"))
	assert.True(t, m.Tracked("assets/textures/rock.png"))
	assert.False(t, m.Tracked("readme.md"), "non-lfs attribute lines must not be tracked")
	assert.False(t, m.Tracked("main.go"))
}

func TestAttributeMatcherEscapedSpace(t *testing.T) {
	m, err := NewAttributeMatcher(strings.NewReader(`my\ file.bin filter=lfs diff=lfs merge=lfs -text` + "\n"))
	require.NoError(t, err)
	assert.True(t, m.Tracked("my file.bin"))
}

func TestAddPatternIsIdempotent(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, AddPattern(&buf, nil, "*.bin"))
	first := buf.String()

	existing := []string{strings.TrimRight(first, "\n")}
	var again strings.Builder
	require.NoError(t, AddPattern(&again, existing, "*.bin"))
	assert.Empty(t, again.String(), "adding an already-tracked pattern writes nothing")
}

func TestRemovePatternStripsMatchingLine(t *testing.T) {
	existing := []string{
		"*.bin filter=lfs diff=lfs merge=lfs -text",
		"*.psd filter=lfs diff=lfs merge=lfs -text",
	}
	out := RemovePattern(existing, "*.bin")
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "*.psd")
}
