package session_test

import (
	"testing"

	"tangled.org/atscan.net/perfhint/internal/types"
	"tangled.org/atscan.net/perfhint/session"
)

const (
	testCapacity   = 5
	testJankFactor = 1.5
)

func ms(v int64) int64 { return v * 1_000_000 }

// totals builds durations with zero timestamps
func totals(durationsMs ...int64) []types.WorkDuration {
	out := make([]types.WorkDuration, len(durationsMs))
	for i, d := range durationsMs {
		out[i] = types.WorkDuration{DurationNanos: ms(d)}
	}
	return out
}

// frames builds durations from {timestampMs, durationMs} pairs
func frames(pairs ...[2]int64) []types.WorkDuration {
	out := make([]types.WorkDuration, len(pairs))
	for i, p := range pairs {
		out[i] = types.WorkDuration{TimestampNanos: ms(p[0]), DurationNanos: ms(p[1])}
	}
	return out
}

func newRecords() *session.Records {
	return session.NewRecords(testCapacity, testJankFactor)
}

func assertStats(t *testing.T, r *session.Records, records, maxUs, avgUs, missed int32) {
	t.Helper()

	if got := r.NumOfRecords(); got != records {
		t.Errorf("NumOfRecords = %d, want %d", got, records)
	}
	if got, ok := r.MaxDuration(); !ok || got != maxUs {
		t.Errorf("MaxDuration = %d (%v), want %d", got, ok, maxUs)
	}
	if got, ok := r.AvgDuration(); !ok || got != avgUs {
		t.Errorf("AvgDuration = %d (%v), want %d", got, ok, avgUs)
	}
	if got := r.NumOfMissedCycles(); got != missed {
		t.Errorf("NumOfMissedCycles = %d, want %d", got, missed)
	}
}

func assertEmpty(t *testing.T, r *session.Records) {
	t.Helper()

	if r.NumOfRecords() != 0 {
		t.Errorf("NumOfRecords = %d, want 0", r.NumOfRecords())
	}
	if _, ok := r.MaxDuration(); ok {
		t.Error("MaxDuration should be absent")
	}
	if _, ok := r.AvgDuration(); ok {
		t.Error("AvgDuration should be absent")
	}
	if r.NumOfMissedCycles() != 0 {
		t.Errorf("NumOfMissedCycles = %d, want 0", r.NumOfMissedCycles())
	}
}

// ====================================================================================
// ROLLING STATISTICS
// ====================================================================================

func TestNoRecords(t *testing.T) {
	assertEmpty(t, newRecords())
}

func TestAddReportedDurations(t *testing.T) {
	r := newRecords()
	var buckets session.FrameBuckets

	r.AddReportedDurations(totals(3, 4, 3, 2), ms(3), &buckets, false)
	assertStats(t, r, 4, 4000, 3000, 0)

	// overflow: oldest two records are evicted
	r.AddReportedDurations(totals(2, 1, 2), ms(3), &buckets, false)
	assertStats(t, r, 5, 3000, 2000, 0)

	r.AddReportedDurations(totals(10, 2, 9, 8, 4, 5, 7, 6), ms(3), &buckets, false)
	assertStats(t, r, 5, 8000, 6000, 4)
}

func TestMaxTracksEviction(t *testing.T) {
	r := newRecords()

	// the 50ms frame dominates until it falls out of the window
	r.AddReportedDurations(totals(50, 1, 1, 1, 1), ms(100), nil, false)
	if got, _ := r.MaxDuration(); got != 50000 {
		t.Fatalf("MaxDuration = %d, want 50000", got)
	}

	r.AddReportedDurations(totals(2), ms(100), nil, false)
	if got, _ := r.MaxDuration(); got != 2000 {
		t.Errorf("MaxDuration after eviction = %d, want 2000", got)
	}
}

func TestCheckLowFrameRate(t *testing.T) {
	r := newRecords()
	var buckets session.FrameBuckets

	if r.IsLowFrameRate(25) {
		t.Fatal("empty records reported low frame rate")
	}

	steps := []struct {
		frames []types.WorkDuration
		want   bool
	}{
		{frames([2]int64{0, 8}, [2]int64{10, 9}, [2]int64{20, 8}, [2]int64{30, 8}), false},
		{frames([2]int64{130, 8}, [2]int64{230, 9}), false},
		{frames([2]int64{330, 8}, [2]int64{430, 9}), true},
		{frames([2]int64{440, 8}, [2]int64{450, 9}), false},
	}

	for i, step := range steps {
		r.AddReportedDurations(step.frames, ms(10), &buckets, false)
		if got := r.IsLowFrameRate(25); got != step.want {
			t.Errorf("step %d: IsLowFrameRate = %v, want %v", i, got, step.want)
		}
	}
}

func TestSwitchTargetDuration(t *testing.T) {
	r := newRecords()
	var buckets session.FrameBuckets

	r.AddReportedDurations(frames([2]int64{0, 8}, [2]int64{10, 9}, [2]int64{20, 19}, [2]int64{40, 8}), ms(10), &buckets, false)
	assertStats(t, r, 4, 19000, 11000, 1)

	r.ResetRecords()
	assertEmpty(t, r)
	if r.IsLowFrameRate(25) {
		t.Error("IsLowFrameRate after reset")
	}

	r.AddReportedDurations(frames([2]int64{50, 14}, [2]int64{70, 16}), ms(20), &buckets, false)
	assertStats(t, r, 2, 16000, 15000, 0)
	if r.IsLowFrameRate(25) {
		t.Error("IsLowFrameRate with two records")
	}
}

// ====================================================================================
// FPS JITTERS
// ====================================================================================

func TestCheckFPSJitters(t *testing.T) {
	r := newRecords()
	var buckets session.FrameBuckets

	if r.NumOfFPSJitters() != 0 {
		t.Fatalf("fresh records have %d jitters", r.NumOfFPSJitters())
	}

	steps := []struct {
		name     string
		frames   []types.WorkDuration
		compute  bool
		jitters  int32
		fps      int32
		checkFPS bool
	}{
		{"Steady", frames([2]int64{0, 8}, [2]int64{10, 9}, [2]int64{20, 8}, [2]int64{30, 8}), true, 0, 100, true},
		{"LongGap", frames([2]int64{40, 22}, [2]int64{80, 8}), true, 1, 50, true},
		{"Recovered", frames([2]int64{90, 8}, [2]int64{100, 8}, [2]int64{110, 7}), true, 1, 0, false},
		{"OldJitterEvicted", frames([2]int64{120, 22}, [2]int64{150, 8}), true, 1, 0, false},
		{"ComputeDisabled", frames([2]int64{160, 8}, [2]int64{170, 8}), false, 1, 0, true},
		{"AllOverwritten", frames([2]int64{190, 8}, [2]int64{230, 8}, [2]int64{300, 8}), false, 0, 0, true},
	}

	for _, step := range steps {
		r.AddReportedDurations(step.frames, ms(10), &buckets, step.compute)
		if got := r.NumOfFPSJitters(); got != step.jitters {
			t.Errorf("%s: NumOfFPSJitters = %d, want %d", step.name, got, step.jitters)
		}
		if step.checkFPS {
			if got := r.LatestFPS(); got != step.fps {
				t.Errorf("%s: LatestFPS = %d, want %d", step.name, got, step.fps)
			}
		}
	}
}

func TestResetKeepsJitterWindow(t *testing.T) {
	r := newRecords()
	var buckets session.FrameBuckets

	r.AddReportedDurations(frames([2]int64{0, 8}, [2]int64{10, 9}, [2]int64{20, 8}, [2]int64{30, 8}), ms(10), &buckets, true)
	if fps := r.LatestFPS(); fps != 100 {
		t.Fatalf("LatestFPS before reset = %d, want 100", fps)
	}
	if latest, ok := r.Latest(); !ok || latest.TotalDurationUs != 8000 {
		t.Fatalf("Latest = %+v (%v)", latest, ok)
	}

	r.ResetRecords()
	assertEmpty(t, r)
	if r.NumOfFPSJitters() != 0 {
		t.Errorf("NumOfFPSJitters = %d, want 0", r.NumOfFPSJitters())
	}
	if _, ok := r.Latest(); ok {
		t.Error("Latest should be absent after reset")
	}
	if fps := r.LatestFPS(); fps != 100 {
		t.Errorf("LatestFPS after reset = %d, want 100", fps)
	}

	// the retained window flags a long gap right after the reset
	r.AddReportedDurations(frames([2]int64{100, 8}, [2]int64{140, 8}), ms(10), &buckets, true)
	if got := r.NumOfFPSJitters(); got != 1 {
		t.Errorf("NumOfFPSJitters = %d, want 1", got)
	}
	if got := r.NumOfRecords(); got != 2 {
		t.Errorf("NumOfRecords = %d, want 2", got)
	}
}

// ====================================================================================
// FRAME BUCKETS
// ====================================================================================

func TestUpdateFrameBuckets(t *testing.T) {
	r := newRecords()
	var buckets session.FrameBuckets

	r.AddReportedDurations(totals(10, 11, 16, 17, 26, 40), ms(10), &buckets, false)
	want := session.FrameBuckets{
		TotalNumOfFrames:    6,
		NumOfFrames17to25ms: 1,
		NumOfFrames25to34ms: 1,
		NumOfFrames34to67ms: 1,
	}
	if buckets != want {
		t.Errorf("buckets = %+v, want %+v", buckets, want)
	}

	r.AddReportedDurations(totals(80, 100), ms(10), &buckets, false)
	want.TotalNumOfFrames = 8
	want.NumOfFrames67to100ms = 1
	want.NumOfFramesOver100ms = 1
	if buckets != want {
		t.Errorf("buckets = %+v, want %+v", buckets, want)
	}

	buckets.AddUpNewFrames(session.FrameBuckets{
		TotalNumOfFrames:     2,
		NumOfFrames17to25ms:  1,
		NumOfFrames25to34ms:  1,
		NumOfFrames34to67ms:  1,
		NumOfFrames67to100ms: 1,
	})
	want = session.FrameBuckets{
		TotalNumOfFrames:     10,
		NumOfFrames17to25ms:  2,
		NumOfFrames25to34ms:  2,
		NumOfFrames34to67ms:  2,
		NumOfFrames67to100ms: 2,
		NumOfFramesOver100ms: 1,
	}
	if buckets != want {
		t.Errorf("buckets = %+v, want %+v", buckets, want)
	}
}

func TestFrameBucketsString(t *testing.T) {
	tests := []struct {
		name    string
		buckets session.FrameBuckets
		want    string
	}{
		{"Empty", session.FrameBuckets{}, "JankFramesInBuckets: 0%-0%-0%-0%-0%-0"},
		{
			"Mixed",
			session.FrameBuckets{TotalNumOfFrames: 3, NumOfFrames17to25ms: 1, NumOfFramesOver100ms: 2},
			"JankFramesInBuckets: 33.33%(1)-0%-0%-0%-66.66%(2)-3",
		},
		{
			"AllJank",
			session.FrameBuckets{TotalNumOfFrames: 4, NumOfFrames25to34ms: 4},
			"JankFramesInBuckets: 0%-100%(4)-0%-0%-0%-4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.buckets.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
