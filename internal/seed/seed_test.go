package seed

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	fh, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer fh.Close()
	if err := png.Encode(fh, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestLoadSortsAndResizes(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "frame_001.png"), 8, 8, color.NRGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(dir, "frame_000.png"), 4, 4, color.NRGBA{B: 255, A: 255})
	writePNG(t, filepath.Join(dir, "frame_002.png"), 8, 8, color.NRGBA{G: 255, A: 255})
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	frames, err := Load(dir, 4, 4, 2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames; want 3", len(frames))
	}
	for i, f := range frames {
		if f.Width != 4 || f.Height != 4 {
			t.Fatalf("frame %d geometry = %dx%d; want 4x4", i, f.Width, f.Height)
		}
	}
	// Lexical order puts the blue frame_000 first; blue channel near +1.
	if b := frames[0].Pix[2]; b < 0.9 {
		t.Fatalf("first frame blue sample = %v; frames not sorted by name", b)
	}
	if r := frames[1].Pix[0]; r < 0.9 {
		t.Fatalf("second frame red sample = %v; want red frame_001", r)
	}
}

func TestLoadRejectsShortClip(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "only.png"), 4, 4, color.NRGBA{A: 255})
	if _, err := Load(dir, 4, 4, 4); err == nil {
		t.Fatalf("Load accepted a clip shorter than the context window")
	}
}

func TestLoadMissingDir(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope"), 4, 4, 1); err == nil {
		t.Fatalf("Load accepted a missing directory")
	}
}
