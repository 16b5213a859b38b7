package domain

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testDescriptor() PluginDescriptor {
	return PluginDescriptor{
		ID:          "com.picoedge.ai-tools",
		Name:        "AI Tools",
		Vendor:      "PicoEdge",
		Version:     "0.0.1-SNAPSHOT",
		SinceBuild:  "222",
		Description: "Copy and paste project contents",
		Depends:     []string{"com.intellij.modules.platform", "com.intellij.modules.java"},
	}
}

func testSpec(t require.TestingT, version, since, until string) PatchSpec {
	v, err := NewVersion(version)
	require.NoError(t, err)
	bounds, err := NewBuildRange(since, until)
	require.NoError(t, err)
	return PatchSpec{Version: v, Bounds: bounds}
}

// =============================================================================
// PatchSpec Tests
// =============================================================================

func TestPatchSpec_Apply(t *testing.T) {
	spec := testSpec(t, "1.0.0", "232", "299.*")
	original := testDescriptor()

	patched := spec.Apply(original)

	want := original
	want.Version = "1.0.0"
	want.SinceBuild = "232"
	want.UntilBuild = "299.*"
	if diff := cmp.Diff(want, patched); diff != "" {
		t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "0.0.1-SNAPSHOT", original.Version, "Apply must not mutate its input")
	assert.NoError(t, spec.Check(patched))
}

func TestPatchSpec_OptionalFields(t *testing.T) {
	spec := testSpec(t, "1.0.0", "232", "")
	spec.ChangeNotes = "<ul><li>First release</li></ul>"

	patched := spec.Apply(testDescriptor())

	assert.Equal(t, "Copy and paste project contents", patched.Description, "empty description keeps the original")
	assert.Equal(t, "<ul><li>First release</li></ul>", patched.ChangeNotes)
	assert.Equal(t, "", patched.UntilBuild)
}

func TestPatchSpec_Check(t *testing.T) {
	spec := testSpec(t, "1.0.0", "232", "299.*")

	tests := []struct {
		name   string
		mutate func(*PluginDescriptor)
	}{
		{"stale version", func(d *PluginDescriptor) { d.Version = "0.9.0" }},
		{"stale since", func(d *PluginDescriptor) { d.SinceBuild = "231" }},
		{"missing until", func(d *PluginDescriptor) { d.UntilBuild = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := spec.Apply(testDescriptor())
			tt.mutate(&d)
			assert.Error(t, spec.Check(d))
		})
	}
}

func TestPatchSpec_ApplyIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		version := rapid.StringMatching(`[0-9]{1,3}(\.[0-9]{1,3}){0,2}(-[a-z]{1,5}(\.[0-9])?)?`).Draw(t, "version")
		since := rapid.IntRange(100, 300).Draw(t, "since")
		until := ""
		if rapid.Bool().Draw(t, "bounded") {
			until = fmt.Sprintf("%d.*", rapid.IntRange(since, 400).Draw(t, "until"))
		}

		spec := testSpec(t, version, fmt.Sprint(since), until)
		once := spec.Apply(testDescriptor())
		twice := spec.Apply(once)

		if diff := cmp.Diff(once, twice); diff != "" {
			t.Fatalf("second Apply changed the descriptor (-once +twice):\n%s", diff)
		}
		if once.Version != version {
			t.Fatalf("version = %q, want %q", once.Version, version)
		}
		if err := spec.Check(once); err != nil {
			t.Fatalf("Check() = %v", err)
		}
	})
}

// =============================================================================
// PatchedDescriptor Tests
// =============================================================================

func TestNewPatchedDescriptor(t *testing.T) {
	d := testSpec(t, "1.0.0", "232", "299.*").Apply(testDescriptor())

	t.Run("copies content", func(t *testing.T) {
		content := []byte("<idea-plugin/>")
		p, err := NewPatchedDescriptor(d, content)
		require.NoError(t, err)

		content[0] = 'X'
		assert.Equal(t, "<idea-plugin/>", string(p.Content()))
		assert.Equal(t, "1.0.0", p.Descriptor().Version)
	})

	t.Run("rejects empty content", func(t *testing.T) {
		_, err := NewPatchedDescriptor(d, []byte("  \n"))
		assert.Error(t, err)
	})

	t.Run("rejects missing version", func(t *testing.T) {
		noVersion := d
		noVersion.Version = ""
		_, err := NewPatchedDescriptor(noVersion, []byte("<idea-plugin/>"))
		assert.Error(t, err)
	})
}

func TestPluginDescriptor_Identifier(t *testing.T) {
	d := testDescriptor()
	assert.Equal(t, "com.picoedge.ai-tools", d.Identifier())

	d.ID = ""
	assert.Equal(t, "AI Tools", d.Identifier())
}
