package descriptor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"picoedge.com/ijpkg/internal/application/ports"
	"picoedge.com/ijpkg/internal/core/domain"
)

const sourceXML = `<?xml version="1.0" encoding="UTF-8"?>
<idea-plugin>
    <id>com.picoedge.ai-tools</id>
    <name>AI Tools</name>
    <vendor email="dev@picoedge.com">PicoEdge</vendor>
    <description><![CDATA[Copy project contents and diffs for AI assistants.]]></description>
    <depends>com.intellij.modules.platform</depends>
    <depends>com.intellij.modules.java</depends>
    <extensions defaultExtensionNs="com.intellij">
        <toolWindow id="Log Pane" anchor="bottom" factoryClass="com.picoedge.ai_tools.LogPaneToolWindowFactory"/>
    </extensions>
</idea-plugin>
`

func spec(t require.TestingT, version, since, until string) domain.PatchSpec {
	v, err := domain.NewVersion(version)
	require.NoError(t, err)
	bounds, err := domain.NewBuildRange(since, until)
	require.NoError(t, err)
	return domain.PatchSpec{Version: v, Bounds: bounds}
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src", "main", "resources", "META-INF", "plugin.xml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse(t *testing.T) {
	d, err := Parse([]byte(sourceXML))
	require.NoError(t, err)

	assert.Equal(t, "com.picoedge.ai-tools", d.ID)
	assert.Equal(t, "AI Tools", d.Name)
	assert.Equal(t, "PicoEdge", d.Vendor)
	assert.Equal(t, "", d.Version)
	assert.Equal(t, "Copy project contents and diffs for AI assistants.", d.Description)
	assert.Equal(t, []string{"com.intellij.modules.platform", "com.intellij.modules.java"}, d.Depends)
}

func TestParse_Errors(t *testing.T) {
	for name, content := range map[string]string{
		"wrong root": `<plugin><id>x</id></plugin>`,
		"malformed":  `<idea-plugin><id>x</idea-plugin>`,
		"empty":      ``,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(content))
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// Patch Tests
// =============================================================================

func TestPatcher_Patch(t *testing.T) {
	source := writeSource(t, sourceXML)
	output := filepath.Join(t.TempDir(), "patchedPluginXml", "META-INF", "plugin.xml")

	patched, err := NewPatcher(nil).Patch(context.Background(), ports.PatchRequest{
		SourcePath: source,
		OutputPath: output,
		Spec:       spec(t, "1.0.0", "232", "299.*"),
	})
	require.NoError(t, err)

	d := patched.Descriptor()
	assert.Equal(t, "1.0.0", d.Version)
	assert.Equal(t, "232", d.SinceBuild)
	assert.Equal(t, "299.*", d.UntilBuild)
	assert.Equal(t, "com.picoedge.ai-tools", d.ID)
	assert.Len(t, d.Depends, 2)

	written, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, string(patched.Content()), string(written))
	assert.Contains(t, string(written), "    <version>1.0.0</version>\n")
	assert.Contains(t, string(written), `<idea-version since-build="232" until-build="299.*"/>`)

	original, err := os.ReadFile(source)
	require.NoError(t, err)
	assert.Equal(t, sourceXML, string(original), "source descriptor must not change")
}

func TestPatcher_OverwritesExistingValues(t *testing.T) {
	source := writeSource(t, `<idea-plugin>
  <id>x</id>
  <version>0.0.1-SNAPSHOT</version>
  <idea-version since-build="222" until-build="231.*"/>
  <change-notes>old</change-notes>
</idea-plugin>`)

	s := spec(t, "2.0.0", "232", "")
	s.ChangeNotes = "<ul><li>New log pane</li></ul>"
	patched, err := NewPatcher(nil).Patch(context.Background(), ports.PatchRequest{SourcePath: source, Spec: s})
	require.NoError(t, err)

	content := string(patched.Content())
	assert.Equal(t, 1, strings.Count(content, "<version>"))
	assert.Contains(t, content, `<idea-version since-build="232"/>`)
	assert.Contains(t, content, "<![CDATA[<ul><li>New log pane</li></ul>]]>")
	assert.Equal(t, "", patched.Descriptor().UntilBuild)
	assert.Equal(t, "<ul><li>New log pane</li></ul>", patched.Descriptor().ChangeNotes)
}

// Text containing the CDATA terminator still produces a well-formed descriptor.
func TestPatchBytes_CDataTerminator(t *testing.T) {
	s := spec(t, "1.0.0", "232", "299.*")
	s.Description = "Wraps <code>]]></code> safely"
	s.ChangeNotes = "a]]>b]]>"

	once, err := PatchBytes([]byte(sourceXML), s)
	require.NoError(t, err)
	assert.NotContains(t, string(once), "a]]>b")

	d, err := Parse(once)
	require.NoError(t, err)
	assert.Equal(t, s.Description, d.Description)
	assert.Equal(t, s.ChangeNotes, d.ChangeNotes)
	require.NoError(t, s.Check(d))

	twice, err := PatchBytes(once, s)
	require.NoError(t, err)
	assert.Equal(t, string(once), string(twice))
}

func TestPatcher_Errors(t *testing.T) {
	t.Run("missing descriptor", func(t *testing.T) {
		_, err := NewPatcher(nil).Patch(context.Background(), ports.PatchRequest{
			SourcePath: filepath.Join(t.TempDir(), "plugin.xml"),
			Spec:       spec(t, "1.0.0", "232", "299.*"),
		})
		assert.ErrorIs(t, err, domain.ErrPackaging)
	})

	t.Run("not a plugin descriptor", func(t *testing.T) {
		source := writeSource(t, `<project/>`)
		_, err := NewPatcher(nil).Patch(context.Background(), ports.PatchRequest{
			SourcePath: source,
			Spec:       spec(t, "1.0.0", "232", "299.*"),
		})
		assert.ErrorIs(t, err, domain.ErrPackaging)
	})
}

// Patching is deterministic and patching a patched document changes nothing.
func TestPatchBytes_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		version := rapid.StringMatching(`[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}(-[a-z]{1,6}\.[0-9])?`).Draw(t, "version")
		since := rapid.IntRange(200, 260).Draw(t, "since")
		until := ""
		if rapid.Bool().Draw(t, "bounded") {
			until = fmt.Sprintf("%d.*", rapid.IntRange(since, 400).Draw(t, "until"))
		}
		s := spec(t, version, fmt.Sprint(since), until)

		once, err := PatchBytes([]byte(sourceXML), s)
		if err != nil {
			t.Fatalf("PatchBytes() = %v", err)
		}
		again, err := PatchBytes([]byte(sourceXML), s)
		if err != nil {
			t.Fatalf("PatchBytes() = %v", err)
		}
		twice, err := PatchBytes(once, s)
		if err != nil {
			t.Fatalf("PatchBytes(patched) = %v", err)
		}

		if string(once) != string(again) {
			t.Fatalf("patching is not deterministic")
		}
		if string(once) != string(twice) {
			t.Fatalf("patching is not idempotent:\n%s\n---\n%s", once, twice)
		}
		d, err := Parse(once)
		if err != nil {
			t.Fatalf("Parse() = %v", err)
		}
		if err := s.Check(d); err != nil {
			t.Fatalf("Check() = %v", err)
		}
	})
}
