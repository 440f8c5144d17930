package session

import (
	"strconv"
	"strings"
)

// FrameBuckets counts reported frames and sorts janky ones by duration.
// Only missed frames of at least 17ms land in a bucket.
type FrameBuckets struct {
	TotalNumOfFrames     int64 `json:"total"`
	NumOfFrames17to25ms  int64 `json:"17_25ms"`
	NumOfFrames25to34ms  int64 `json:"25_34ms"`
	NumOfFrames34to67ms  int64 `json:"34_67ms"`
	NumOfFrames67to100ms int64 `json:"67_100ms"`
	NumOfFramesOver100ms int64 `json:"over_100ms"`
}

// Bucket lower bounds in microseconds
const (
	bucket17ms  = 17000
	bucket25ms  = 25000
	bucket34ms  = 34000
	bucket67ms  = 67000
	bucket100ms = 100000
)

// add counts one frame of totalUs
func (b *FrameBuckets) add(totalUs int32, missed bool) {
	b.TotalNumOfFrames++
	if !missed || totalUs < bucket17ms {
		return
	}

	switch {
	case totalUs < bucket25ms:
		b.NumOfFrames17to25ms++
	case totalUs < bucket34ms:
		b.NumOfFrames25to34ms++
	case totalUs < bucket67ms:
		b.NumOfFrames34to67ms++
	case totalUs < bucket100ms:
		b.NumOfFrames67to100ms++
	default:
		b.NumOfFramesOver100ms++
	}
}

// AddUpNewFrames merges other into b
func (b *FrameBuckets) AddUpNewFrames(other FrameBuckets) {
	b.TotalNumOfFrames += other.TotalNumOfFrames
	b.NumOfFrames17to25ms += other.NumOfFrames17to25ms
	b.NumOfFrames25to34ms += other.NumOfFrames25to34ms
	b.NumOfFrames34to67ms += other.NumOfFrames34to67ms
	b.NumOfFrames67to100ms += other.NumOfFrames67to100ms
	b.NumOfFramesOver100ms += other.NumOfFramesOver100ms
}

// JankFrames returns the number of frames in any bucket
func (b FrameBuckets) JankFrames() int64 {
	return b.NumOfFrames17to25ms + b.NumOfFrames25to34ms + b.NumOfFrames34to67ms +
		b.NumOfFrames67to100ms + b.NumOfFramesOver100ms
}

// String renders each bucket as a percentage of all frames, with the raw
// count in parentheses when non-zero, followed by the total.
func (b FrameBuckets) String() string {
	var sb strings.Builder
	sb.WriteString("JankFramesInBuckets: ")

	if b.TotalNumOfFrames <= 0 {
		sb.WriteString("0%-0%-0%-0%-0%-0")
		return sb.String()
	}

	buckets := [...]int64{
		b.NumOfFrames17to25ms,
		b.NumOfFrames25to34ms,
		b.NumOfFrames34to67ms,
		b.NumOfFrames67to100ms,
		b.NumOfFramesOver100ms,
	}
	for i, n := range buckets {
		if i > 0 {
			sb.WriteByte('-')
		}
		pct := float64(n*10000/b.TotalNumOfFrames) / 100.0
		sb.WriteString(strconv.FormatFloat(pct, 'g', -1, 64))
		sb.WriteByte('%')
		if n > 0 {
			sb.WriteString("(" + strconv.FormatInt(n, 10) + ")")
		}
	}

	sb.WriteString("-" + strconv.FormatInt(b.TotalNumOfFrames, 10))
	return sb.String()
}
