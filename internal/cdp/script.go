package cdp

import (
	"encoding/json"
	"fmt"

	"github.com/dgnsrekt/mintlens/internal/dom"
	"github.com/dgnsrekt/mintlens/internal/overlay"
	"github.com/dgnsrekt/mintlens/internal/pattern"
)

// bindingName is the Runtime binding the bootstrap script reports through.
const bindingName = "__mintlens"

// bootstrapJS installs page listeners once per document. Hover reports are
// only sent when the marked target changes; hovering lens UI is ignored.
var bootstrapJS = fmt.Sprintf(`(function () {
  if (window.__mintlensInstalled) return;
  window.__mintlensInstalled = true;
  var OWNED = %[1]q, MARK_ID = %[2]q, MARK_KIND = %[3]q, BINDING = %[4]q;
  function send(msg) {
    var fn = window[BINDING];
    if (typeof fn === "function") fn(JSON.stringify(msg));
  }
  var last = "";
  window.__mintlensResetHover = function () { last = ""; };
  document.addEventListener("mouseover", function (ev) {
    var t = ev.target;
    if (!(t instanceof Element)) return;
    if (t.closest('[' + OWNED + '="overlay"],[' + OWNED + '="panel"]')) return;
    var el = t.closest('[' + MARK_ID + ']');
    if (!el) {
      if (last !== "") { last = ""; send({type: "hover", marked: false}); }
      return;
    }
    var id = el.getAttribute(MARK_ID);
    if (id === last) return;
    last = id;
    var r = el.getBoundingClientRect();
    send({
      type: "hover", marked: true, id: id,
      kind: el.getAttribute(MARK_KIND) || "", text: el.textContent || "",
      rect: {top: r.top, left: r.left, bottom: r.bottom, right: r.right},
      scroll: {x: window.scrollX, y: window.scrollY}
    });
  }, true);
  document.addEventListener("keydown", function (ev) {
    if (ev.ctrlKey || ev.metaKey || ev.altKey || ev.repeat) return;
    var t = ev.target;
    if (t && (t.isContentEditable || /^(INPUT|TEXTAREA|SELECT)$/.test(t.tagName))) return;
    send({type: "key", key: ev.key});
  }, true);
  document.addEventListener("click", function (ev) {
    var t = ev.target;
    if (!(t instanceof Element)) return;
    var b = t.closest('[' + OWNED + '="panel"] [data-action]');
    if (b) { ev.preventDefault(); send({type: "action", action: b.getAttribute("data-action")}); }
  }, true);
  var drag = null;
  document.addEventListener("mousedown", function (ev) {
    var t = ev.target;
    if (!(t instanceof Element) || !t.closest(".sol-trade-panel-handle")) return;
    drag = {x: ev.clientX, y: ev.clientY};
    ev.preventDefault();
  }, true);
  document.addEventListener("mouseup", function (ev) {
    if (!drag) return;
    var dx = ev.clientX - drag.x, dy = ev.clientY - drag.y;
    drag = null;
    if (dx || dy) send({type: "drag", dx: dx, dy: dy});
  }, true);
})();`, dom.AttrOwned, dom.AttrMarkID, dom.AttrMarkKind, bindingName)

// message is a binding payload from the bootstrap script.
type message struct {
	Type   string     `json:"type"`
	Marked bool       `json:"marked"`
	ID     string     `json:"id"`
	Kind   string     `json:"kind"`
	Text   string     `json:"text"`
	Rect   dom.Rect   `json:"rect"`
	Scroll dom.Scroll `json:"scroll"`
	Key    string     `json:"key"`
	Action string     `json:"action"`
	DX     float64    `json:"dx"`
	DY     float64    `json:"dy"`
}

func decodeMessage(payload string) (message, error) {
	var m message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return message{}, fmt.Errorf("cdp: decode binding payload: %w", err)
	}
	switch m.Type {
	case "hover", "key", "action", "drag":
		return m, nil
	}
	return message{}, fmt.Errorf("cdp: unknown binding message %q", m.Type)
}

// Target converts a hover message for the overlay controller.
func (m message) Target() overlay.Target {
	if !m.Marked || m.ID == "" {
		return overlay.Target{}
	}
	return overlay.Target{
		Marked: true,
		Anchor: overlay.Anchor{
			ID:     m.ID,
			Kind:   pattern.Kind(m.Kind),
			Text:   m.Text,
			Rect:   m.Rect,
			Scroll: m.Scroll,
		},
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// replaceTextJS is called on a resolved text node. It swaps the node for
// the rendered wrap only if the text is still what the mirror saw.
func replaceTextJS(expected, wrapHTML string) string {
	return `function () {
  if (this.nodeValue !== ` + jsString(expected) + ` || !this.parentNode) return false;
  var t = document.createElement("template");
  t.innerHTML = ` + jsString(wrapHTML) + `;
  var n = t.content.firstChild;
  if (!n) return false;
  this.parentNode.replaceChild(n, this);
  return true;
}`
}

// upsertJS replaces the element with id, or appends to body when it is
// missing.
func upsertJS(id, outerHTML string) string {
	return `(function () {
  var t = document.createElement("template");
  t.innerHTML = ` + jsString(outerHTML) + `;
  var n = t.content.firstChild;
  if (!n || !document.body) return false;
  var old = document.getElementById(` + jsString(id) + `);
  if (old) old.replaceWith(n); else document.body.appendChild(n);
  return true;
})()`
}

// replaceExistingJS replaces the element with id and does nothing when it
// is gone.
func replaceExistingJS(id, outerHTML string) string {
	return `(function () {
  var old = document.getElementById(` + jsString(id) + `);
  if (!old) return false;
  var t = document.createElement("template");
  t.innerHTML = ` + jsString(outerHTML) + `;
  var n = t.content.firstChild;
  if (!n) return false;
  old.replaceWith(n);
  return true;
})()`
}

// resetHoverJS forgets the last hovered mark so hovering it again is
// reported after the overlay was taken down from our side.
const resetHoverJS = `(function () {
  if (typeof window.__mintlensResetHover !== "function") return false;
  window.__mintlensResetHover();
  return true;
})()`

func removeJS(id string) string {
	return `(function () {
  var el = document.getElementById(` + jsString(id) + `);
  if (el) el.remove();
  return !!el;
})()`
}
