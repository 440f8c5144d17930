package ui

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressBar shows how many frames a client has pushed
type ProgressBar struct {
	total     int
	current   int
	jank      int
	startTime time.Time
	mu        sync.Mutex
	width     int
	lastPrint time.Time
}

// NewProgressBar creates a progress bar for total frames
func NewProgressBar(total int) *ProgressBar {
	return &ProgressBar{
		total:     total,
		startTime: time.Now(),
		width:     40,
		lastPrint: time.Now(),
	}
}

// Add records frames pushed, jank of which were deliberately slow
func (pb *ProgressBar) Add(frames, jank int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current += frames
	pb.jank += jank
	pb.print()
}

// Finish completes the progress bar
func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = pb.total
	pb.print()
	fmt.Fprintf(os.Stderr, "\n")
}

// print renders the progress bar
func (pb *ProgressBar) print() {
	if time.Since(pb.lastPrint) < 100*time.Millisecond && pb.current < pb.total {
		return
	}
	pb.lastPrint = time.Now()

	percent := 0.0
	filled := 0
	if pb.total > 0 {
		percent = float64(pb.current) / float64(pb.total) * 100
		filled = min(pb.width, pb.width*pb.current/pb.total)
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	rate := 0.0
	if elapsed.Seconds() > 0 {
		rate = float64(pb.current) / elapsed.Seconds()
	}

	if pb.current >= pb.total {
		fmt.Fprintf(os.Stderr, "\r  [%s] %6.2f%% | %d/%d frames | %.1f fps | %d jank | Done    ",
			bar, percent, pb.current, pb.total, rate, pb.jank)
		return
	}

	var eta time.Duration
	if rate > 0 {
		eta = time.Duration(float64(pb.total-pb.current)/rate) * time.Second
	}
	fmt.Fprintf(os.Stderr, "\r  [%s] %6.2f%% | %d/%d frames | %.1f fps | %d jank | ETA: %s ",
		bar, percent, pb.current, pb.total, rate, pb.jank, formatETA(eta))
}

func formatETA(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}
