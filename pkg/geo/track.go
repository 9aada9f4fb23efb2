package geo

import "sync"

// TrackBuffer maintains a rolling window of fixes and derives course over ground.
type TrackBuffer struct {
	mu          sync.RWMutex
	samples     []Point
	windowSize  int
	minMovement float64
}

// NewTrackBuffer creates a buffer with the given sample window. Legs shorter than
// minMovement meters are treated as GPS jitter and yield no course.
func NewTrackBuffer(windowSize int, minMovement float64) *TrackBuffer {
	if windowSize < 2 {
		windowSize = 2
	}
	return &TrackBuffer{
		windowSize:  windowSize,
		minMovement: minMovement,
	}
}

// Push adds a fix to the window.
func (b *TrackBuffer) Push(p Point) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, p)
	if len(b.samples) > b.windowSize {
		b.samples = b.samples[1:]
	}
}

// CourseOverGround returns the bearing from the oldest to the newest fix in the window.
// ok is false until the window spans at least minMovement meters.
func (b *TrackBuffer) CourseOverGround() (course float64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.samples) < 2 {
		return 0, false
	}
	first, last := b.samples[0], b.samples[len(b.samples)-1]
	if Distance(first, last) < b.minMovement {
		return 0, false
	}
	return Bearing(first, last), true
}

// Reset clears the buffer history.
func (b *TrackBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = nil
}
