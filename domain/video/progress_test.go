package video

import (
	"reflect"
	"testing"
)

func TestProgressEvent_Record(t *testing.T) {
	tests := []struct {
		name  string
		event ProgressEvent
		want  map[string]any
	}{
		{
			name:  "progress update",
			event: ProgressEvent{SourcePath: "in.mp4", DestinationPath: "out.mp4", Progress: 0.25},
			want:  map[string]any{"input": "in.mp4", "output": "out.mp4", "progress": 0.25},
		},
		{
			name:  "done",
			event: ProgressEvent{SourcePath: "in.mp4", DestinationPath: "out.mp4", Progress: 1, Terminal: true},
			want:  map[string]any{"input": "in.mp4", "output": "out.mp4", "progress": 1.0},
		},
		{
			name:  "cancelled",
			event: ProgressEvent{SourcePath: "in.mp4", DestinationPath: "out.mp4", Terminal: true, Code: TerminalCancelled},
			want:  map[string]any{"input": "in.mp4", "output": "out.mp4", "progress": 0.0, "errorIndex": 5},
		},
		{
			name: "mux failure with skipped tracks",
			event: ProgressEvent{SourcePath: "in.mp4", DestinationPath: "out.mp4", Terminal: true,
				Code: TerminalMuxFailure, SkippedTracks: []int{1}},
			want: map[string]any{"input": "in.mp4", "output": "out.mp4", "progress": 0.0, "errorIndex": 4,
				"skippedTracks": []int{1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.Record(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Record() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_Code(t *testing.T) {
	if StatusDone.Code() != TerminalNone {
		t.Error("done should carry no terminal code")
	}
	if StatusCancelled.Code() != TerminalCancelled || TerminalCancelled.String() != "CANCELLED" {
		t.Error("cancelled code mismatch")
	}
	if StatusFailed.Code() != TerminalMuxFailure || TerminalMuxFailure.String() != "MUX_FAILURE" {
		t.Error("failed code mismatch")
	}
}
