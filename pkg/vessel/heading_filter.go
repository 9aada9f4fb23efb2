package vessel

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"boatpilot/pkg/geo"
)

// FilterConfig holds the compass tuning. The values are vessel specific and are
// injected from configuration.
type FilterConfig struct {
	WindowSize       int     // readings kept for outlier detection
	OutlierThreshold float64 // degrees from the window mean that count as an outlier
	Alpha            float64 // EMA factor while steady
	MotionThreshold  float64 // degrees between raw readings that indicate a turn
	MotionAlpha      float64 // EMA factor while turning
	MaxRejections    int     // consecutive outliers before the window is reset
}

// DefaultFilterConfig returns the tuning used on the reference hull.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		WindowSize:       10,
		OutlierThreshold: 20,
		Alpha:            0.3,
		MotionThreshold:  10,
		MotionAlpha:      0.8,
		MaxRejections:    3,
	}
}

// HeadingFilter smooths a HeadingSource and rejects isolated spikes.
type HeadingFilter struct {
	src HeadingSource
	cfg FilterConfig

	mu         sync.Mutex
	window     []float64
	filtered   float64
	hasValue   bool
	lastRaw    float64
	lastDelta  float64
	hasRaw     bool
	rejections int
}

// NewHeadingFilter wraps src.
func NewHeadingFilter(src HeadingSource, cfg FilterConfig) *HeadingFilter {
	if cfg.WindowSize < 1 {
		cfg.WindowSize = 1
	}
	if cfg.MaxRejections < 1 {
		cfg.MaxRejections = 1
	}
	return &HeadingFilter{src: src, cfg: cfg}
}

// Heading implements HeadingSource.
func (f *HeadingFilter) Heading(ctx context.Context) (float64, error) {
	raw, err := f.src.Heading(ctx)
	if err != nil {
		return 0, err
	}
	raw = geo.NormalizeHeading(raw)

	f.mu.Lock()
	defer f.mu.Unlock()

	// a turn is two consecutive large changes in the same direction; a lone spike is not
	var delta float64
	if f.hasRaw {
		delta = geo.NormalizeAngle(raw - f.lastRaw)
	}
	turning := math.Abs(delta) > f.cfg.MotionThreshold &&
		math.Abs(f.lastDelta) > f.cfg.MotionThreshold &&
		math.Signbit(delta) == math.Signbit(f.lastDelta)

	if !turning && f.isOutlier(raw) {
		f.rejections++
		if f.rejections < f.cfg.MaxRejections {
			slog.Debug("HeadingFilter: Rejected outlier", "raw", raw, "filtered", f.filtered)
			return f.filtered, nil
		}
		// persistent disagreement means the window is stale, not the sensor
		f.window = f.window[:0]
		f.hasValue = false
	}
	f.rejections = 0
	// motion is tracked over accepted readings only
	f.lastRaw = raw
	f.lastDelta = delta
	f.hasRaw = true

	f.window = append(f.window, raw)
	if len(f.window) > f.cfg.WindowSize {
		f.window = f.window[1:]
	}

	if !f.hasValue {
		f.filtered = raw
		f.hasValue = true
		return f.filtered, nil
	}

	alpha := f.cfg.Alpha
	if turning {
		alpha = f.cfg.MotionAlpha
	}
	f.filtered = geo.NormalizeHeading(f.filtered + alpha*geo.NormalizeAngle(raw-f.filtered))
	return f.filtered, nil
}

func (f *HeadingFilter) isOutlier(raw float64) bool {
	if len(f.window) < 3 {
		return false
	}
	return math.Abs(geo.NormalizeAngle(raw-circularMean(f.window))) > f.cfg.OutlierThreshold
}

func circularMean(headings []float64) float64 {
	var sumSin, sumCos float64
	for _, h := range headings {
		r := h * math.Pi / 180
		sumSin += math.Sin(r)
		sumCos += math.Cos(r)
	}
	return geo.NormalizeHeading(math.Atan2(sumSin, sumCos) * 180 / math.Pi)
}
