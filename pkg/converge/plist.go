package converge

import (
	"fmt"

	"github.com/beevik/etree"
)

const plistDoctype = `DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd"`

// newPlist returns an empty property list document
func newPlist() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.CreateDirective(plistDoctype)
	plist := doc.CreateElement("plist")
	plist.CreateAttr("version", "1.0")
	plist.CreateElement("dict")
	return doc
}

// rootDict returns the top-level dictionary of doc
func rootDict(doc *etree.Document) (*etree.Element, error) {
	root := doc.Root()
	if root == nil || root.Tag != "plist" {
		return nil, fmt.Errorf("document is not a property list")
	}
	dict := root.SelectElement("dict")
	if dict == nil {
		return nil, fmt.Errorf("property list has no top-level dict")
	}
	return dict, nil
}

// lookup returns the value element stored under key in dict, or nil
func lookup(dict *etree.Element, key string) *etree.Element {
	children := dict.ChildElements()
	for i := 0; i < len(children); i++ {
		if children[i].Tag != "key" || children[i].Text() != key {
			continue
		}
		if i+1 < len(children) {
			return children[i+1]
		}
		return nil
	}
	return nil
}

// descend walks the dictionaries named by path. With create set, missing
// dictionaries are added and changed reports whether that happened.
func descend(dict *etree.Element, path []string, create bool) (d *etree.Element, changed bool, err error) {
	d = dict
	for _, segment := range path {
		next := lookup(d, segment)
		switch {
		case next == nil && !create:
			return nil, changed, nil
		case next == nil:
			d.CreateElement("key").SetText(segment)
			next = d.CreateElement("dict")
			changed = true
		case next.Tag != "dict":
			return nil, changed, fmt.Errorf("%s holds a %s, not a dictionary", segment, next.Tag)
		}
		d = next
	}
	return d, changed, nil
}

// scalar reports whether el holds a single value that can be replaced
func scalar(el *etree.Element) bool {
	switch el.Tag {
	case "string", "integer", "real", "true", "false", "date", "data":
		return true
	}
	return false
}
