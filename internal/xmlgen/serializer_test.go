package xmlgen

import (
	"strings"
	"testing"

	"github.com/rpattn/oigen/internal/domain"
)

func sampleRecord() domain.IntermediateRecord {
	return domain.IntermediateRecord{
		NodeType: "document",
		Action:   "sync",
		Standard: []domain.Field{
			{Label: "location", Value: "Enterprise:Finance"},
			{Label: "title", Value: "Q1 Report"},
			{Label: "description", Value: "Revenue & costs"},
			{Label: "file", Value: "reports/q1.pdf"},
			{Label: "createdby", Value: "jane"},
		},
		Categories: []domain.CategoryBlock{
			{Name: "Corp:Records", Attributes: []domain.Field{
				{Label: "Department", Value: "Finance"},
			}},
		},
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	rules := domain.DefaultReplacements()
	cdata := NewCDATAPolicy([]string{"*"})

	first := Render(sampleRecord(), rules, cdata)
	second := Render(sampleRecord(), rules, cdata)
	if first != second {
		t.Fatalf("render not byte-identical:\nfirst:  %s\nsecond: %s", first, second)
	}
}

func TestRenderStructureAndOrder(t *testing.T) {
	got := Render(sampleRecord(), nil, NewCDATAPolicy(nil))

	if !strings.HasPrefix(got, `<node type="document" action="sync">`) {
		t.Fatalf("unexpected node element start: %s", got)
	}
	locIdx := strings.Index(got, "<location>")
	titleIdx := strings.Index(got, "<title>")
	if locIdx == -1 || titleIdx == -1 || locIdx > titleIdx {
		t.Fatalf("standard field order not preserved: %s", got)
	}
	if !strings.Contains(got, `<createdby type="0">jane</createdby>`) {
		t.Fatalf("createdby missing type attribute: %s", got)
	}
	if !strings.Contains(got, `<category name="Corp:Records"><attribute name="Department">Finance</attribute></category>`) {
		t.Fatalf("category block malformed: %s", got)
	}
}

func TestRenderEscapesTextWithoutCDATA(t *testing.T) {
	rec := sampleRecord()
	got := Render(rec, nil, NewCDATAPolicy(nil))
	if !strings.Contains(got, "<description>Revenue &amp; costs</description>") {
		t.Fatalf("expected entity escaping, got: %s", got)
	}
}

func TestRenderSanitizeRunsBeforeEscaping(t *testing.T) {
	rec := sampleRecord()
	got := Render(rec, domain.DefaultReplacements(), NewCDATAPolicy(nil))
	if !strings.Contains(got, "<description>Revenue and costs</description>") {
		t.Fatalf("expected sanitize pass to run first, got: %s", got)
	}
}

func TestRenderCDATAPolicy(t *testing.T) {
	rec := sampleRecord()

	wildcard := Render(rec, nil, NewCDATAPolicy([]string{"*"}))
	if !strings.Contains(wildcard, "<title><![CDATA[Q1 Report]]></title>") {
		t.Fatalf("wildcard policy did not wrap title: %s", wildcard)
	}
	if !strings.Contains(wildcard, "<![CDATA[Finance]]>") {
		t.Fatalf("wildcard policy did not wrap category attribute: %s", wildcard)
	}

	selective := Render(rec, nil, NewCDATAPolicy([]string{"description"}))
	if !strings.Contains(selective, "<description><![CDATA[Revenue & costs]]></description>") {
		t.Fatalf("selective policy did not wrap description: %s", selective)
	}
	if strings.Contains(selective, "<title><![CDATA[") {
		t.Fatalf("selective policy wrapped unlisted label: %s", selective)
	}
}

func TestRenderDoesNotDoubleWrapCDATA(t *testing.T) {
	rec := domain.IntermediateRecord{
		NodeType: "folder",
		Action:   "sync",
		Standard: []domain.Field{{Label: "title", Value: "<![CDATA[already wrapped]]>"}},
	}
	got := Render(rec, nil, NewCDATAPolicy([]string{"*"}))
	if strings.Count(got, "<![CDATA[") != 1 {
		t.Fatalf("CDATA wrapped twice: %s", got)
	}
}

func TestRenderAddVersionAndDelete(t *testing.T) {
	rec := domain.IntermediateRecord{
		NodeType: "document",
		Action:   domain.ActionAddVersion,
		Standard: []domain.Field{
			{Label: "location", Value: "Enterprise:Docs"},
			{Label: "title", Value: "should not appear"},
			{Label: "file", Value: "v2/doc.pdf"},
			{Label: "version", Value: "2"},
		},
	}
	got := Render(rec, nil, NewCDATAPolicy(nil))
	if !strings.Contains(got, `<location type="0">Enterprise:Docs</location>`) {
		t.Fatalf("addversion missing location: %s", got)
	}
	if !strings.Contains(got, `<file type="0">v2/doc.pdf</file>`) || !strings.Contains(got, "<version>2</version>") {
		t.Fatalf("addversion missing file/version: %s", got)
	}
	if strings.Contains(got, "<title>") {
		t.Fatalf("addversion rendered full element set: %s", got)
	}

	rec.Action = domain.ActionDelete
	got = Render(rec, nil, NewCDATAPolicy(nil))
	if strings.Contains(got, "<file") || strings.Contains(got, "<version>") {
		t.Fatalf("delete rendered file/version: %s", got)
	}
}

func TestRenderEscapesAttributes(t *testing.T) {
	rec := domain.IntermediateRecord{
		NodeType: "folder",
		Action:   "sync",
		Categories: []domain.CategoryBlock{
			{Name: `Legal "Hold"`, Attributes: []domain.Field{{Label: "a", Value: "v"}}},
		},
	}
	got := Render(rec, nil, NewCDATAPolicy(nil))
	if !strings.Contains(got, `<category name="Legal &quot;Hold&quot;">`) {
		t.Fatalf("attribute quoting broken: %s", got)
	}
}
