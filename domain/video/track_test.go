package video

import (
	"reflect"
	"testing"
)

func TestTrackDescriptor_Selected(t *testing.T) {
	tests := []struct {
		mime      string
		keepAudio bool
		want      bool
	}{
		{"video/avc", false, true},
		{"video/avc", true, true},
		{"video/hevc", false, true},
		{"audio/mp4a-latm", true, true},
		{"audio/mp4a-latm", false, false},
		{"audio/unknown", true, false},
		{"AUDIO/UNKNOWN", true, false},
		{"audio/UNKNOWN", true, false},
		{"Audio/aac", true, false},
		{"Video/avc", true, false},
		{"text/tx3g", true, false},
		{"application/octet-stream", true, false},
		{"", true, false},
	}

	for _, tt := range tests {
		name := tt.mime
		if tt.keepAudio {
			name += "+audio"
		}
		t.Run(name, func(t *testing.T) {
			d := TrackDescriptor{MimeType: tt.mime}
			if got := d.Selected(tt.keepAudio); got != tt.want {
				t.Errorf("Selected(%v) for %q = %v, want %v", tt.keepAudio, tt.mime, got, tt.want)
			}
		})
	}
}

func TestTrackMapBuilder(t *testing.T) {
	var b TrackMapBuilder
	b.Add(0, 0)
	b.Add(2, 1)
	m := b.Build()

	// later additions must not leak into a built map
	b.Add(3, 2)

	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	if dst, ok := m.Lookup(2); !ok || dst != 1 {
		t.Errorf("Lookup(2) = %d, %v; want 1, true", dst, ok)
	}
	if _, ok := m.Lookup(1); ok {
		t.Error("Lookup(1) should miss")
	}
	if _, ok := m.Lookup(3); ok {
		t.Error("Lookup(3) should miss on the earlier snapshot")
	}
	if got := m.Sources(); !reflect.DeepEqual(got, []int{0, 2}) {
		t.Errorf("Sources() = %v, want [0 2]", got)
	}

	var empty TrackMap
	if _, ok := empty.Lookup(0); ok || empty.Len() != 0 {
		t.Error("zero TrackMap should route nothing")
	}
}

func TestSampleRecord_Rebase(t *testing.T) {
	rec := SampleRecord{Size: 10, PresentationUs: 1_040_000, DecodeUs: 1_000_000, Flags: SampleFlagSync}

	got := rec.Rebase(1_000_000)
	want := SampleInfo{Size: 10, PresentationUs: 40_000, DecodeUs: 0, Flags: SampleFlagSync}
	if got != want {
		t.Errorf("Rebase() = %+v, want %+v", got, want)
	}

	early := SampleRecord{PresentationUs: 900_000, DecodeUs: 900_000}.Rebase(1_000_000)
	if early.PresentationUs != 0 || early.DecodeUs != 0 {
		t.Errorf("Rebase() before base = %+v, want clamped to zero", early)
	}

	reordered := SampleRecord{PresentationUs: 1_080_000, DecodeUs: 1_000_000}.Rebase(1_080_000)
	if reordered.PresentationUs != 0 || reordered.DecodeUs != -80_000 {
		t.Errorf("Rebase() with composition offset = %+v, want pts 0 dts -80000", reordered)
	}

	earlyReordered := SampleRecord{PresentationUs: 1_000_000, DecodeUs: 960_000}.Rebase(1_080_000)
	if earlyReordered.PresentationUs != 0 || earlyReordered.DecodeUs != -40_000 {
		t.Errorf("Rebase() clamped with composition offset = %+v, want pts 0 dts -40000", earlyReordered)
	}
}
