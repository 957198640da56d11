package audio_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/MrWong99/larder/pkg/audio"
)

func TestEncodeWAV_Header(t *testing.T) {
	t.Parallel()

	pcm := audio.SamplesToBytes([]int16{1, 2, 3, 4})
	out, err := audio.EncodeWAV(pcm, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("RIFF")) {
		t.Fatalf("missing RIFF magic: % x", out[:min(len(out), 12)])
	}
	if !bytes.Equal(out[8:12], []byte("WAVE")) {
		t.Errorf("missing WAVE tag: %q", out[8:12])
	}
	if !bytes.HasSuffix(out, pcm) {
		t.Errorf("PCM payload not at end of file")
	}
}

func TestEncodeWAV_InvalidFormat(t *testing.T) {
	t.Parallel()

	if _, err := audio.EncodeWAV(nil, 0, 1); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestWAVSource_ReplaysFile(t *testing.T) {
	t.Parallel()

	samples := []int16{10, 20, 30, 40, 50}
	file, err := audio.EncodeWAV(audio.SamplesToBytes(samples), 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	src, err := audio.NewWAVSource(bytes.NewReader(file), audio.WithWAVFrameSize(2))
	if err != nil {
		t.Fatalf("NewWAVSource: %v", err)
	}
	if src.Channels() != 1 || src.SampleRate() != 16000 || src.FrameSize() != 2 {
		t.Fatalf("format = %d ch / %d Hz / %d frame", src.Channels(), src.SampleRate(), src.FrameSize())
	}

	ctx := context.Background()
	buf := make([]int16, 2)
	var got []int16
	for {
		err := src.Read(ctx, buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, buf...)
	}

	want := []int16{10, 20, 30, 40, 50, 0}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestWAVSource_RejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := audio.NewWAVSource(bytes.NewReader([]byte("not a wav file at all"))); err == nil {
		t.Fatal("expected error for invalid file")
	}
}

func TestWAVSource_Closed(t *testing.T) {
	t.Parallel()

	file, err := audio.EncodeWAV(audio.SamplesToBytes([]int16{1}), 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	src, err := audio.NewWAVSource(bytes.NewReader(file))
	if err != nil {
		t.Fatalf("NewWAVSource: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := src.Read(context.Background(), make([]int16, 1)); !errors.Is(err, audio.ErrClosed) {
		t.Errorf("Read after Close = %v, want ErrClosed", err)
	}
}
