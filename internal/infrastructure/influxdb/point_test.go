package influxdb

import (
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-midi/internal/midi"
)

func TestMessagePoint(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	clock, _ := midi.NewShortMessage(0xF8, 0, 0)                                 //nolint:errcheck // Valid status
	cc, _ := midi.NewShortMessage(0xB3, 7, 127)                                  //nolint:errcheck // Valid status
	sysex, _ := midi.NewSysexMessage([]byte{0xF0, 0x7E, 0x7F, 0x06, 0x01, 0xF7}) //nolint:errcheck // Well framed

	tests := []struct {
		name    string
		msg     midi.Message
		ts      int64
		want    []string
		notWant []string
	}{
		{
			name: "control change",
			msg:  cc,
			ts:   42,
			want: []string{"command=control_change", "channel=3", "kind=short", "data1=7i", "data2=127i", "length=3i", "timestamp_us=42i"},
		},
		{
			name:    "system realtime",
			msg:     clock,
			ts:      -1,
			want:    []string{"command=system", "kind=short", "length=1i", "status=248i"},
			notWant: []string{"channel=", "timestamp_us"},
		},
		{
			name:    "pointer short message",
			msg:     &cc,
			ts:      -1,
			want:    []string{"command=control_change", "packed="},
			notWant: []string{"kind=sysex"},
		},
		{
			name:    "sysex",
			msg:     sysex,
			ts:      -1,
			want:    []string{"kind=sysex", "length=6i", "status=240i"},
			notWant: []string{"command=", "data1="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := MessagePoint("keys", "rx-1", tt.msg, tt.ts, at)
			if p.Name() != MeasurementMessages {
				t.Errorf("Name() = %q", p.Name())
			}

			line := write.PointToLineProtocol(p, time.Nanosecond)
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("line %q missing %q", line, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(line, w) {
					t.Errorf("line %q should not contain %q", line, w)
				}
			}
		})
	}
}

func TestCommandName(t *testing.T) {
	tests := map[byte]string{
		0x80: "note_off",
		0x90: "note_on",
		0xE0: "pitch_bend",
		0xF8: "system",
		0xF2: "system",
	}
	for cmd, want := range tests {
		if got := commandName(cmd); got != want {
			t.Errorf("commandName(0x%02X) = %q, want %q", cmd, got, want)
		}
	}
}
