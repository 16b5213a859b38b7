package domain

import (
	"bytes"
	"fmt"
)

// PluginDescriptor is the metadata embedded in a packaged plugin as
// META-INF/plugin.xml. Only the fields the pipeline reads or writes are kept.
type PluginDescriptor struct {
	ID          string
	Name        string
	Vendor      string
	Version     string
	SinceBuild  string
	UntilBuild  string
	Description string
	ChangeNotes string
	// Depends lists declared platform module dependencies, e.g. "com.intellij.modules.java"
	Depends []string
}

// Identifier returns the plugin id, falling back to the name as the host does
func (d PluginDescriptor) Identifier() string {
	if d.ID != "" {
		return d.ID
	}
	return d.Name
}

// Bounds parses the descriptor's compatibility range
func (d PluginDescriptor) Bounds() (BuildRange, error) {
	return NewBuildRange(d.SinceBuild, d.UntilBuild)
}

// PatchSpec holds the values the patch stage writes into a descriptor
type PatchSpec struct {
	Version Version
	Bounds  BuildRange
	// Description and ChangeNotes overwrite the descriptor only when non-empty
	Description string
	ChangeNotes string
}

// Apply returns a copy of d with the spec's fields written in. It has no
// side effects and applying the same spec twice yields the same descriptor.
func (s PatchSpec) Apply(d PluginDescriptor) PluginDescriptor {
	patched := d
	patched.Depends = append([]string(nil), d.Depends...)
	patched.Version = s.Version.String()
	patched.SinceBuild = s.Bounds.SinceBuild()
	patched.UntilBuild = s.Bounds.UntilBuild()
	if s.Description != "" {
		patched.Description = s.Description
	}
	if s.ChangeNotes != "" {
		patched.ChangeNotes = s.ChangeNotes
	}
	return patched
}

// Check reports whether d carries exactly the version and bounds of the spec
func (s PatchSpec) Check(d PluginDescriptor) error {
	if d.Version != s.Version.String() {
		return fmt.Errorf("descriptor version %q does not match expected %q", d.Version, s.Version)
	}
	if d.SinceBuild != s.Bounds.SinceBuild() {
		return fmt.Errorf("descriptor since-build %q does not match expected %q", d.SinceBuild, s.Bounds.SinceBuild())
	}
	if d.UntilBuild != s.Bounds.UntilBuild() {
		return fmt.Errorf("descriptor until-build %q does not match expected %q", d.UntilBuild, s.Bounds.UntilBuild())
	}
	return nil
}

// PatchedDescriptor is the output of the patch stage: the patched values and
// the rendered plugin.xml. Assembly only accepts this type.
type PatchedDescriptor struct {
	descriptor PluginDescriptor
	content    []byte
}

// NewPatchedDescriptor seals a descriptor and its rendered XML together
func NewPatchedDescriptor(d PluginDescriptor, content []byte) (*PatchedDescriptor, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, fmt.Errorf("patched descriptor content is empty")
	}
	if d.Version == "" {
		return nil, fmt.Errorf("patched descriptor has no version")
	}
	return &PatchedDescriptor{descriptor: d, content: append([]byte(nil), content...)}, nil
}

// Descriptor returns the patched values
func (p *PatchedDescriptor) Descriptor() PluginDescriptor {
	return p.descriptor
}

// Content returns a copy of the rendered plugin.xml
func (p *PatchedDescriptor) Content() []byte {
	return append([]byte(nil), p.content...)
}
