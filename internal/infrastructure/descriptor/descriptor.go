// Package descriptor reads and patches META-INF/plugin.xml.
package descriptor

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"picoedge.com/ijpkg/internal/core/domain"
)

// RootTag is the document element of every plugin descriptor
const RootTag = "idea-plugin"

// Parse extracts the descriptor fields from plugin.xml content
func Parse(data []byte) (domain.PluginDescriptor, error) {
	doc, err := load(data)
	if err != nil {
		return domain.PluginDescriptor{}, err
	}
	return fromRoot(doc.Root()), nil
}

func load(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("malformed plugin.xml: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("plugin.xml has no root element")
	}
	if root.Tag != RootTag {
		return nil, fmt.Errorf("plugin.xml root element is <%s>, expected <%s>", root.Tag, RootTag)
	}
	return doc, nil
}

func fromRoot(root *etree.Element) domain.PluginDescriptor {
	d := domain.PluginDescriptor{
		ID:          childText(root, "id"),
		Name:        childText(root, "name"),
		Vendor:      childText(root, "vendor"),
		Version:     childText(root, "version"),
		Description: childText(root, "description"),
		ChangeNotes: childText(root, "change-notes"),
	}
	if iv := root.SelectElement("idea-version"); iv != nil {
		d.SinceBuild = iv.SelectAttrValue("since-build", "")
		d.UntilBuild = iv.SelectAttrValue("until-build", "")
	}
	for _, dep := range root.SelectElements("depends") {
		if v := strings.TrimSpace(dep.Text()); v != "" {
			d.Depends = append(d.Depends, v)
		}
	}
	return d
}

func childText(root *etree.Element, tag string) string {
	if el := root.SelectElement(tag); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

// apply writes the spec into the document, creating missing elements
func apply(root *etree.Element, spec domain.PatchSpec) {
	ensureChild(root, "version", "name", "id").SetText(spec.Version.String())

	iv := ensureChild(root, "idea-version", "version", "vendor", "name", "id")
	iv.CreateAttr("since-build", spec.Bounds.SinceBuild())
	if until := spec.Bounds.UntilBuild(); until != "" {
		iv.CreateAttr("until-build", until)
	} else {
		iv.RemoveAttr("until-build")
	}

	if spec.Description != "" {
		ensureChild(root, "description", "idea-version", "vendor").SetCData(cdataText(spec.Description))
	}
	if spec.ChangeNotes != "" {
		ensureChild(root, "change-notes", "description", "idea-version").SetCData(cdataText(spec.ChangeNotes))
	}
}

// cdataText splits every "]]>" across two CDATA sections. etree writes CDATA
// verbatim and joins adjacent sections when reading, so the text round-trips.
func cdataText(s string) string {
	return strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>")
}

// ensureChild returns root's <tag>, inserting one after the first existing
// sibling named in after (or first in the document) when it is missing. The
// inserted element copies the indentation of its neighbour.
func ensureChild(root *etree.Element, tag string, after ...string) *etree.Element {
	if el := root.SelectElement(tag); el != nil {
		return el
	}

	el := etree.NewElement(tag)
	for _, name := range after {
		ref := root.SelectElement(name)
		if ref == nil {
			continue
		}
		i := ref.Index()
		root.InsertChildAt(i+1, el)
		if indent := leadingWhitespace(root, i); indent != "" {
			root.InsertChildAt(i+1, etree.NewText(indent))
		}
		return el
	}

	indent := leadingWhitespace(root, 1)
	if indent == "" {
		root.InsertChildAt(0, el)
		return el
	}
	root.InsertChildAt(1, el)
	root.InsertChildAt(2, etree.NewText(indent))
	return el
}

// leadingWhitespace returns the whitespace text token before child index i
func leadingWhitespace(root *etree.Element, i int) string {
	if i <= 0 || i > len(root.Child) {
		return ""
	}
	if cd, ok := root.Child[i-1].(*etree.CharData); ok && strings.TrimSpace(cd.Data) == "" {
		return cd.Data
	}
	return ""
}
