// Package viewport models scroll position sampling and the near-bottom check
// that decides when more listing content should be requested.
package viewport

import "sync"

// DefaultThreshold is the distance in pixels from the end of the document
// that counts as near the bottom.
const DefaultThreshold = 500.0

// ScrollSignal is one sample of the scroll position. It is never stored.
type ScrollSignal struct {
	ViewportHeight float64
	ScrollOffset   float64
	DocumentHeight float64
}

// NearBottom reports whether the visible area reaches within threshold of the
// document end.
func NearBottom(sig ScrollSignal, threshold float64) bool {
	return sig.ViewportHeight+sig.ScrollOffset >= sig.DocumentHeight-threshold
}

// Source produces a fresh ScrollSignal on every call.
type Source interface {
	Sample() ScrollSignal
}

// SourceFunc adapts a function to Source.
type SourceFunc func() ScrollSignal

// Sample calls f.
func (f SourceFunc) Sample() ScrollSignal {
	return f()
}

// Synthetic is a headless viewport. The document height is recomputed through
// a callback on each sample because appended content changes it.
type Synthetic struct {
	mu             sync.Mutex
	viewportHeight float64
	offset         float64
	documentHeight func() float64
}

// NewSynthetic creates a viewport of the given height scrolled to the top.
func NewSynthetic(viewportHeight float64, documentHeight func() float64) *Synthetic {
	return &Synthetic{
		viewportHeight: viewportHeight,
		documentHeight: documentHeight,
	}
}

// Sample implements Source.
func (s *Synthetic) Sample() ScrollSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ScrollSignal{
		ViewportHeight: s.viewportHeight,
		ScrollOffset:   s.offset,
		DocumentHeight: s.height(),
	}
}

// ScrollTo moves the top of the viewport to offset, clamped to the document.
func (s *Synthetic) ScrollTo(offset float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = s.clamp(offset)
}

// ScrollBy moves the viewport by delta pixels.
func (s *Synthetic) ScrollBy(delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = s.clamp(s.offset + delta)
}

// ScrollToBottom moves the viewport to the end of the current document.
func (s *Synthetic) ScrollToBottom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = s.clamp(s.height())
}

// Offset returns the current scroll offset.
func (s *Synthetic) Offset() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

func (s *Synthetic) height() float64 {
	if s.documentHeight == nil {
		return s.viewportHeight
	}
	return s.documentHeight()
}

func (s *Synthetic) clamp(offset float64) float64 {
	maxOffset := s.height() - s.viewportHeight
	if maxOffset < 0 {
		maxOffset = 0
	}
	switch {
	case offset < 0:
		return 0
	case offset > maxOffset:
		return maxOffset
	default:
		return offset
	}
}
