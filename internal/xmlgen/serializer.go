// Package xmlgen renders intermediate records as XML import fragments and
// batches them into size-bounded container documents.
//
// Fragments are built by hand rather than through encoding/xml marshalling:
// the target format needs per-label CDATA-or-escape decisions and a byte
// stable element order, neither of which the marshaller can promise. The
// reconciliation flow depends on Render being reproducible down to the byte.
package xmlgen

import (
	"strings"

	"github.com/rpattn/oigen/internal/domain"
	"github.com/rpattn/oigen/internal/escape"
)

// CDATAPolicy decides which target labels get their text wrapped in a CDATA
// section instead of entity escaping. A "*" entry applies to every label.
type CDATAPolicy struct {
	wildcard bool
	labels   map[string]struct{}
}

// NewCDATAPolicy builds a policy from the configured label set.
func NewCDATAPolicy(labels []string) CDATAPolicy {
	p := CDATAPolicy{labels: make(map[string]struct{}, len(labels))}
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "*" {
			p.wildcard = true
			continue
		}
		if l != "" {
			p.labels[strings.ToLower(l)] = struct{}{}
		}
	}
	return p
}

// Applies reports whether text under the given label is CDATA-wrapped.
func (p CDATAPolicy) Applies(label string) bool {
	if p.wildcard {
		return true
	}
	_, ok := p.labels[strings.ToLower(label)]
	return ok
}

// Render produces the XML fragment for one record. The special-character
// pass runs first; XML entity escaping (or CDATA wrapping) applies to the
// sanitized result. Identical inputs always produce identical bytes.
func Render(rec domain.IntermediateRecord, rules []domain.Replacement, cdata CDATAPolicy) string {
	var b strings.Builder

	b.WriteString(`<node type="`)
	b.WriteString(escapeAttr(rec.NodeType))
	b.WriteString(`" action="`)
	b.WriteString(escapeAttr(rec.Action))
	b.WriteString(`">`)

	switch rec.Action {
	case domain.ActionAddVersion, domain.ActionDelete:
		// Reduced element set: the target system addresses the existing
		// node by location alone.
		if loc, ok := rec.StandardValue("location"); ok {
			writeElement(&b, "location", ` type="0"`, loc, rules, cdata)
		}
		if rec.Action == domain.ActionAddVersion {
			if file, ok := fileValue(rec); ok {
				writeElement(&b, "file", ` type="0"`, file, rules, cdata)
			}
			if version, ok := rec.StandardValue("version"); ok {
				writeElement(&b, "version", "", version, rules, cdata)
			}
		}
	default:
		for _, f := range rec.Standard {
			attrs := ""
			if f.Label == "createdby" {
				attrs = ` type="0"`
			}
			writeElement(&b, f.Label, attrs, f.Value, rules, cdata)
		}
		for _, cat := range rec.Categories {
			b.WriteString(`<category name="`)
			b.WriteString(escapeAttr(escape.Sanitize(cat.Name, rules)))
			b.WriteString(`">`)
			for _, attr := range cat.Attributes {
				name := escapeAttr(escape.Sanitize(attr.Label, rules))
				b.WriteString(`<attribute name="`)
				b.WriteString(name)
				b.WriteString(`">`)
				b.WriteString(renderText("attribute", attr.Value, rules, cdata))
				b.WriteString(`</attribute>`)
			}
			b.WriteString(`</category>`)
		}
	}

	b.WriteString(`</node>`)
	return b.String()
}

func fileValue(rec domain.IntermediateRecord) (string, bool) {
	if v, ok := rec.StandardValue("file"); ok {
		return v, true
	}
	return rec.StandardValue("filepath")
}

func writeElement(b *strings.Builder, label, attrs, value string, rules []domain.Replacement, cdata CDATAPolicy) {
	b.WriteString("<")
	b.WriteString(label)
	b.WriteString(attrs)
	b.WriteString(">")
	b.WriteString(renderText(label, value, rules, cdata))
	b.WriteString("</")
	b.WriteString(label)
	b.WriteString(">")
}

func renderText(label, value string, rules []domain.Replacement, cdata CDATAPolicy) string {
	text := escape.Sanitize(value, rules)
	if cdata.Applies(label) {
		return wrapCDATA(text)
	}
	return escapeText(text)
}

func wrapCDATA(text string) string {
	if strings.Contains(text, "<![CDATA[") {
		return text
	}
	return "<![CDATA[" + text + "]]>"
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeText(text string) string {
	return textEscaper.Replace(text)
}

var attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", `"`, "&quot;")

func escapeAttr(value string) string {
	return attrEscaper.Replace(value)
}
