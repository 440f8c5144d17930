package session

import (
	"tangled.org/atscan.net/perfhint/internal/types"
)

// Jitter detection window. Both values are empirically tuned: a frame start
// interval longer than jitterFactor times the mean of the previous
// jitterWindowSize intervals counts as an FPS jitter.
const (
	jitterWindowSize = 3
	jitterFactor     = 1.4
)

// CycleRecord is one reported frame
type CycleRecord struct {
	StartIntervalUs int32 `json:"start_interval_us"`
	TotalDurationUs int32 `json:"total_duration_us"`
	IsMissedCycle   bool  `json:"missed"`
	IsFPSJitter     bool  `json:"fps_jitter"`
}

// Records keeps rolling statistics over the most recent frames of one
// session: max and average duration, missed cycles, FPS jitters and frame
// rate. Every operation is O(1) amortized per record. Records is not safe
// for concurrent use.
type Records struct {
	capacity   int32
	jankFactor float64

	records   []CycleRecord
	maxIdx    indexDeque
	latestIdx int32

	numFrames    int32
	sumUs        int64
	avgUs        int32
	missedCycles int32
	fpsJitters   int32
	lastStartNs  int64

	// interval window for jitter detection, independent of records
	window       [jitterWindowSize]int32
	windowSumUs  int64
	windowFilled int
	windowNext   int
}

// NewRecords creates an empty record set. capacity must be positive.
func NewRecords(capacity int32, jankFactor float64) *Records {
	if capacity <= 0 {
		panic("session: records capacity must be positive")
	}
	return &Records{
		capacity:   capacity,
		jankFactor: jankFactor,
		records:    make([]CycleRecord, capacity),
		maxIdx:     newIndexDeque(int(capacity)),
		latestIdx:  -1,
	}
}

// AddReportedDurations appends durations in order, evicting the oldest
// records once capacity is reached. Every frame is also counted into
// newFrames when it is not nil. With computeFPSJitters false the jitter
// window is cleared and no new jitters are flagged.
func (r *Records) AddReportedDurations(durations []types.WorkDuration, targetDurationNs int64, newFrames *FrameBuckets, computeFPSJitters bool) {
	for i := range durations {
		r.add(&durations[i], targetDurationNs, newFrames, computeFPSJitters)
	}
}

func (r *Records) add(d *types.WorkDuration, targetDurationNs int64, newFrames *FrameBuckets, computeFPSJitters bool) {
	if r.numFrames >= r.capacity {
		r.evictOldest()
	}

	r.latestIdx = (r.latestIdx + 1) % r.capacity

	totalUs := int32(d.DurationNanos / 1000)
	startNs := d.TimestampNanos - d.DurationNanos

	var intervalUs int32
	if r.numFrames > 0 {
		intervalUs = int32((startNs - r.lastStartNs) / 1000)
	}
	r.lastStartNs = startNs

	jitter := false
	if computeFPSJitters {
		// the first frame after a reset has no previous start
		if r.numFrames > 0 {
			jitter = r.observeInterval(intervalUs)
		}
	} else {
		r.resetJitterWindow()
	}

	missed := float64(totalUs) > float64(targetDurationNs/1000)*r.jankFactor

	r.records[r.latestIdx] = CycleRecord{
		StartIntervalUs: intervalUs,
		TotalDurationUs: totalUs,
		IsMissedCycle:   missed,
		IsFPSJitter:     jitter,
	}

	if missed {
		r.missedCycles++
	}
	if jitter {
		r.fpsJitters++
	}

	for !r.maxIdx.empty() && r.records[r.maxIdx.back()].TotalDurationUs <= totalUs {
		r.maxIdx.popBack()
	}
	r.maxIdx.pushBack(r.latestIdx)

	if newFrames != nil {
		newFrames.add(totalUs, missed)
	}

	r.sumUs += int64(totalUs)
	r.numFrames++
	r.avgUs = int32(r.sumUs / int64(r.numFrames))
}

func (r *Records) evictOldest() {
	idx := (r.latestIdx + 1) % r.capacity
	old := &r.records[idx]

	r.sumUs -= int64(old.TotalDurationUs)
	if old.IsMissedCycle {
		r.missedCycles--
	}
	if old.IsFPSJitter {
		r.fpsJitters--
	}
	if !r.maxIdx.empty() && r.maxIdx.front() == idx {
		r.maxIdx.popFront()
	}
	r.numFrames--
}

// observeInterval feeds one start interval to the jitter window and
// reports whether it is a jitter. Non-positive intervals are ignored
// until the window has filled.
func (r *Records) observeInterval(intervalUs int32) bool {
	if r.windowFilled < jitterWindowSize {
		if intervalUs > 0 {
			r.window[r.windowNext] = intervalUs
			r.windowSumUs += int64(intervalUs)
			r.windowNext = (r.windowNext + 1) % jitterWindowSize
			r.windowFilled++
		}
		return false
	}

	jitter := float64(intervalUs) > jitterFactor*float64(r.windowSumUs)/jitterWindowSize

	r.windowSumUs += int64(intervalUs) - int64(r.window[r.windowNext])
	r.window[r.windowNext] = intervalUs
	r.windowNext = (r.windowNext + 1) % jitterWindowSize

	return jitter
}

func (r *Records) resetJitterWindow() {
	r.window = [jitterWindowSize]int32{}
	r.windowSumUs = 0
	r.windowFilled = 0
	r.windowNext = 0
}

// MaxDuration returns the longest retained duration in microseconds
func (r *Records) MaxDuration() (int32, bool) {
	if r.numFrames == 0 || r.maxIdx.empty() {
		return 0, false
	}
	return r.records[r.maxIdx.front()].TotalDurationUs, true
}

// AvgDuration returns the mean retained duration in microseconds
func (r *Records) AvgDuration() (int32, bool) {
	if r.numFrames == 0 {
		return 0, false
	}
	return r.avgUs, true
}

// NumOfRecords returns the number of retained records
func (r *Records) NumOfRecords() int32 {
	return r.numFrames
}

// NumOfMissedCycles returns how many retained records missed their target
func (r *Records) NumOfMissedCycles() int32 {
	return r.missedCycles
}

// NumOfFPSJitters returns how many retained records were flagged as jitters
func (r *Records) NumOfFPSJitters() int32 {
	return r.fpsJitters
}

// LatestFPS returns the frame rate implied by the jitter window, or 0 when
// the window is not full.
func (r *Records) LatestFPS() int32 {
	if r.windowFilled < jitterWindowSize || r.windowSumUs <= 0 {
		return 0
	}
	return int32(int64(jitterWindowSize) * 1_000_000 / r.windowSumUs)
}

// IsLowFrameRate reports whether each of the last three start intervals is
// at least as long as one frame at fpsLowRateThreshold.
func (r *Records) IsLowFrameRate(fpsLowRateThreshold int32) bool {
	if r.numFrames < jitterWindowSize || fpsLowRateThreshold <= 0 {
		return false
	}

	minIntervalUs := 1_000_000.0 / float64(fpsLowRateThreshold)
	idx := r.latestIdx
	for i := 0; i < jitterWindowSize; i++ {
		if float64(r.records[idx].StartIntervalUs) < minIntervalUs {
			return false
		}
		idx = (idx - 1 + r.capacity) % r.capacity
	}
	return true
}

// ResetRecords drops every retained record. Jitter window state and any
// caller-held FrameBuckets are left untouched.
func (r *Records) ResetRecords() {
	r.avgUs = 0
	r.lastStartNs = 0
	r.latestIdx = -1
	r.missedCycles = 0
	r.fpsJitters = 0
	r.numFrames = 0
	r.sumUs = 0
	r.maxIdx.clear()
}

// Latest returns the most recent record
func (r *Records) Latest() (CycleRecord, bool) {
	if r.numFrames == 0 {
		return CycleRecord{}, false
	}
	return r.records[r.latestIdx], true
}
