package sandbox

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"

	"scenecast/internal/render"
)

// Normalize returns data as a PNG raster of exactly vp. Screenshots taken on
// a display with a device pixel ratio other than one come back larger and
// are scaled down; already matching images pass through untouched.
func Normalize(data []byte, vp render.Viewport) (render.Raster, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return render.Raster{}, fmt.Errorf("decode snapshot header: %w", err)
	}
	if cfg.Width == vp.Width && cfg.Height == vp.Height {
		return render.Raster{Data: data, Width: vp.Width, Height: vp.Height}, nil
	}

	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return render.Raster{}, fmt.Errorf("decode snapshot: %w", err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, vp.Width, vp.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, dst); err != nil {
		return render.Raster{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return render.Raster{Data: buf.Bytes(), Width: vp.Width, Height: vp.Height}, nil
}
