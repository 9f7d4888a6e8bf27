package dom

import (
	"strings"
	"testing"
)

func TestParseFindsBody(t *testing.T) {
	doc, err := ParseString(`<html><body><p>hello</p></body></html>`)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	if got := doc.String(); got != "<p>hello</p>" {
		t.Fatalf("String() = %q; want %q", got, "<p>hello</p>")
	}
}

func TestReplaceNotifiesObserversAndIndexesMarks(t *testing.T) {
	doc, err := ParseString(`<p>text</p>`)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	var records []MutationRecord
	cancel := doc.Observe(func(batch []MutationRecord) { records = append(records, batch...) })
	defer cancel()

	p := doc.Body().FirstChild
	old := p.FirstChild
	mark := Children(Element("span", "class", ClassHighlight, AttrMarkID, "m1", AttrOwned, OwnerMark), Text("text"))
	if err := doc.Replace(old, mark); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("records = %d; want 1", len(records))
	}
	if records[0].Target != p || len(records[0].Added) != 1 || len(records[0].Removed) != 1 {
		t.Fatalf("unexpected record %+v", records[0])
	}
	if got, ok := doc.Mark("m1"); !ok || got != mark {
		t.Fatalf("Mark(m1) = %v, %v; want the inserted span", got, ok)
	}

	doc.Remove(mark)
	if _, ok := doc.Mark("m1"); ok {
		t.Fatalf("Mark(m1) still indexed after Remove")
	}
	if len(records) != 2 {
		t.Fatalf("records = %d; want 2", len(records))
	}
}

func TestReplaceDetachedNodeFails(t *testing.T) {
	doc, _ := ParseString(`<p>x</p>`)
	if err := doc.Replace(Text("loose"), Text("other")); err == nil {
		t.Fatal("Replace() on detached node = nil; want error")
	}
}

func TestObserveCancel(t *testing.T) {
	doc, _ := ParseString(`<div></div>`)
	calls := 0
	cancel := doc.Observe(func([]MutationRecord) { calls++ })
	doc.Append(doc.Body(), Element("i"))
	cancel()
	doc.Append(doc.Body(), Element("b"))
	if calls != 1 {
		t.Fatalf("observer calls = %d; want 1", calls)
	}
}

func TestClosestMarkedAndTextContent(t *testing.T) {
	doc, _ := ParseString(`<div><span class="x sol-highlight"><b>$SOL</b></span></div>`)
	b := FindByClass(doc.Body(), ClassHighlight).FirstChild
	if got := ClosestMarked(b.FirstChild); got == nil || !IsMarked(got) {
		t.Fatalf("ClosestMarked() = %v; want marker span", got)
	}
	if got := TextContent(doc.Body()); got != "$SOL" {
		t.Fatalf("TextContent() = %q; want %q", got, "$SOL")
	}
	if got := ClosestMarked(doc.Body()); got != nil {
		t.Fatalf("ClosestMarked(body) = %v; want nil", got)
	}
}

func TestReplaceChildrenSingleRecord(t *testing.T) {
	doc, _ := ParseString(`<div id="box"><i>a</i><i>b</i></div>`)
	box := doc.Body().FirstChild
	var batches int
	doc.Observe(func([]MutationRecord) { batches++ })
	doc.ReplaceChildren(box, Text("fresh"))
	if batches != 1 {
		t.Fatalf("batches = %d; want 1", batches)
	}
	if got := InnerHTML(box); !strings.Contains(got, "fresh") || strings.Contains(got, "<i>") {
		t.Fatalf("InnerHTML() = %q", got)
	}
}
