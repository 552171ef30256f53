// Package seed loads the initial clip a session starts from: a directory of
// numbered PNG or JPEG frames, resized to the model's frame geometry.
package seed

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/draw"

	"github.com/ahump20/Sandlot-Sluggers/internal/codec"
	"github.com/ahump20/Sandlot-Sluggers/internal/logx"
)

// Load reads every image in dir in lexical order, resizes each to
// width x height, and returns them as normalized frames. The clip must hold
// at least window frames so the first step has a full context.
func Load(dir string, width, height, window int) ([]codec.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if len(names) < window {
		return nil, fmt.Errorf("seed: %d frames in %s, need at least %d", len(names), dir, window)
	}

	frames := make([]codec.Frame, 0, len(names))
	for _, name := range names {
		f, err := loadFrame(filepath.Join(dir, name), width, height)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	logx.Log.Info().Str("dir", dir).Int("frames", len(frames)).
		Int("width", width).Int("height", height).Msg("seed clip loaded")
	return frames, nil
}

func loadFrame(path string, width, height int) (codec.Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return codec.Frame{}, fmt.Errorf("seed: %w", err)
	}
	defer fh.Close()

	img, _, err := image.Decode(fh)
	if err != nil {
		return codec.Frame{}, fmt.Errorf("seed: decode %s: %w", path, err)
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		dst := image.NewNRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		img = dst
	}
	return codec.FromImage(img), nil
}
