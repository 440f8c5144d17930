package types_test

import (
	"bytes"
	"fmt"
	"math/bits"
	"testing"

	"tangled.org/atscan.net/perfhint/internal/types"
)

// ====================================================================================
// CONSTANT VALIDATION TESTS
// ====================================================================================

func TestConstants(t *testing.T) {
	t.Run("Capacities", func(t *testing.T) {
		if types.MaxChannels != 16 {
			t.Errorf("MaxChannels = %d, want 16", types.MaxChannels)
		}
		if types.QueueSize != 32 {
			t.Errorf("QueueSize = %d, want 32", types.QueueSize)
		}
	})

	t.Run("BitHalves", func(t *testing.T) {
		if types.WriteBits != 0x0000ffff {
			t.Errorf("WriteBits = %#x, want 0x0000ffff", types.WriteBits)
		}
		if types.ReadBits != 0xffff0000 {
			t.Errorf("ReadBits = %#x, want 0xffff0000", types.ReadBits)
		}
		if types.WriteBits&types.ReadBits != 0 {
			t.Error("write and read halves overlap")
		}
		if types.WriteBits|types.ReadBits != types.AllBits {
			t.Error("write and read halves do not cover the word")
		}
	})
}

func TestBitmasks(t *testing.T) {
	seen := uint32(0)
	for slot := int32(0); slot < types.MaxChannels; slot++ {
		w := types.WriteBitmask(slot)
		r := types.ReadBitmask(slot)

		if bits.OnesCount32(w) != 1 || bits.OnesCount32(r) != 1 {
			t.Fatalf("slot %d: masks must have exactly one bit (w=%#x r=%#x)", slot, w, r)
		}
		if w&types.WriteBits == 0 {
			t.Errorf("slot %d: write mask %#x outside WriteBits", slot, w)
		}
		if r&types.ReadBits == 0 {
			t.Errorf("slot %d: read mask %#x outside ReadBits", slot, r)
		}
		if r != w<<types.MaxChannels {
			t.Errorf("slot %d: read mask %#x, want %#x", slot, r, w<<types.MaxChannels)
		}
		if seen&(w|r) != 0 {
			t.Errorf("slot %d: mask collides with another slot", slot)
		}
		seen |= w | r
	}

	if seen != types.AllBits {
		t.Errorf("slots cover %#x, want all bits", seen)
	}
}

// ====================================================================================
// ENUM TESTS
// ====================================================================================

func TestSessionHint(t *testing.T) {
	tests := []struct {
		hint types.SessionHint
		want string
	}{
		{types.HintCPULoadUp, "CPU_LOAD_UP"},
		{types.HintCPULoadResume, "CPU_LOAD_RESUME"},
		{types.HintPowerEfficiency, "POWER_EFFICIENCY"},
		{types.HintGPULoadReset, "GPU_LOAD_RESET"},
		{types.SessionHint(42), "SessionHint(42)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.hint.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}

	if types.SessionHint(-1).Valid() || types.SessionHint(8).Valid() {
		t.Error("out of range hints should be invalid")
	}
	if !types.HintGPULoadDown.Valid() {
		t.Error("GPU_LOAD_DOWN should be valid")
	}
}

func TestSessionMode(t *testing.T) {
	if int32(types.ModeGraphicsPipeline) != 1 {
		t.Errorf("GRAPHICS_PIPELINE = %d, want 1", types.ModeGraphicsPipeline)
	}
	if types.ModeAutoGPU.String() != "AUTO_GPU" {
		t.Errorf("String() = %q", types.ModeAutoGPU.String())
	}
	if types.SessionMode(4).Valid() {
		t.Error("mode 4 should be invalid")
	}
}

// ====================================================================================
// LOGGER INTERFACE COMPLIANCE TESTS
// ====================================================================================

type bufferedLogger struct {
	buf *bytes.Buffer
}

func (l *bufferedLogger) Printf(format string, v ...interface{}) {
	fmt.Fprintf(l.buf, format+"\n", v...)
}

func (l *bufferedLogger) Println(v ...interface{}) {
	fmt.Fprintln(l.buf, v...)
}

func TestLoggerInterface(t *testing.T) {
	buf := &bytes.Buffer{}
	var logger types.Logger = &bufferedLogger{buf: buf}

	logger.Printf("formatted %s %d", "message", 42)
	logger.Println("plain", "message")

	want := "formatted message 42\nplain message\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
