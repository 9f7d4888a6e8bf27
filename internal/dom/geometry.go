package dom

// Rect is a viewport-relative bounding box, as getBoundingClientRect reports.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
}

// Scroll is the window scroll offset at the time a rect was measured.
type Scroll struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
