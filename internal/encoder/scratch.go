// SPDX-License-Identifier: MIT

package encoder

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/memscreen/memscreen/internal/capture"
)

// ManifestName is the keyframe index written into the scratch directory
// alongside the PNG frames.
const ManifestName = "frames.json"

// Manifest lists the keyframes cached during an encode so analysis can
// reuse them without decoding the video.
type Manifest struct {
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Frames []ManifestFrame `json:"frames"`
}

// ManifestFrame names one cached keyframe with its capture time.
type ManifestFrame struct {
	File       string    `json:"file"`
	CapturedAt time.Time `json:"captured_at"`
}

// LoadManifest reads the keyframe index from a scratch directory.
func LoadManifest(dir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode keyframe manifest: %w", err)
	}
	return &m, nil
}

func keyframeName(index int) string {
	return fmt.Sprintf("frame_%06d.png", index)
}

func writeKeyframe(dir string, index int, frame *capture.Frame) (string, error) {
	name := keyframeName(index)
	img := &image.RGBA{
		Pix:    frame.Pixels,
		Stride: frame.Width * 4,
		Rect:   image.Rect(0, 0, frame.Width, frame.Height),
	}

	f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return "", err
	}
	return name, f.Close()
}
