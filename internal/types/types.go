package types

import "fmt"

// Logger is a simple logging interface used throughout perfhint
type Logger interface {
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

const (
	// MaxChannels is the number of channel slots served by one group worker.
	// One synchronization word carries a write bit and a read bit per slot,
	// so this can never exceed 16.
	MaxChannels = 16

	// QueueSize is the number of messages a channel queue can hold
	QueueSize = 32

	// WriteBits covers the write bits of every slot (low half of the word)
	WriteBits uint32 = 1<<MaxChannels - 1

	// ReadBits covers the read bits of every slot (high half of the word)
	ReadBits uint32 = WriteBits << MaxChannels

	// AllBits wakes every waiter regardless of slot
	AllBits uint32 = 0xffffffff
)

// WriteBitmask returns the bit a client sets after writing to slot
func WriteBitmask(slot int32) uint32 {
	return 1 << uint32(slot)
}

// ReadBitmask returns the bit the server sets after draining slot
func ReadBitmask(slot int32) uint32 {
	return 1 << (uint32(slot) + MaxChannels)
}

// WorkDuration is one reported unit of work, all fields in nanoseconds
type WorkDuration struct {
	TimestampNanos       int64 `json:"timestamp_ns"`
	DurationNanos        int64 `json:"duration_ns"`
	WorkPeriodStartNanos int64 `json:"work_period_start_ns"`
	CPUDurationNanos     int64 `json:"cpu_duration_ns"`
	GPUDurationNanos     int64 `json:"gpu_duration_ns"`
}

// SessionHint is a discrete load hint sent by a client
type SessionHint int32

const (
	HintCPULoadUp SessionHint = iota
	HintCPULoadDown
	HintCPULoadReset
	HintCPULoadResume
	HintPowerEfficiency
	HintGPULoadUp
	HintGPULoadDown
	HintGPULoadReset
)

var hintNames = [...]string{
	"CPU_LOAD_UP",
	"CPU_LOAD_DOWN",
	"CPU_LOAD_RESET",
	"CPU_LOAD_RESUME",
	"POWER_EFFICIENCY",
	"GPU_LOAD_UP",
	"GPU_LOAD_DOWN",
	"GPU_LOAD_RESET",
}

func (h SessionHint) String() string {
	if h >= 0 && int(h) < len(hintNames) {
		return hintNames[h]
	}
	return fmt.Sprintf("SessionHint(%d)", int32(h))
}

// Valid reports whether h is a known hint
func (h SessionHint) Valid() bool {
	return h >= HintCPULoadUp && h <= HintGPULoadReset
}

// SessionMode is a toggleable session behavior
type SessionMode int32

const (
	ModePowerEfficiency SessionMode = iota
	ModeGraphicsPipeline
	ModeAutoCPU
	ModeAutoGPU
)

var modeNames = [...]string{
	"POWER_EFFICIENCY",
	"GRAPHICS_PIPELINE",
	"AUTO_CPU",
	"AUTO_GPU",
}

func (m SessionMode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("SessionMode(%d)", int32(m))
}

// Valid reports whether m is a known mode
func (m SessionMode) Valid() bool {
	return m >= ModePowerEfficiency && m <= ModeAutoGPU
}
