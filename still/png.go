package still

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"

	"avifopt/raster"

	"golang.org/x/image/draw"
)

// PNG re-encodes PNGs at maximum compression, optionally reduced to an
// 8-bit palette.
type PNG struct {
	EightBit bool
	MaxSize  int
}

func (e PNG) Encode(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	img, err := decode(src)
	if err != nil {
		return err
	}
	img = raster.Fit(img, e.MaxSize)
	if e.EightBit {
		img = Paletted(img, 256)
	}

	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := raster.WriteAtomic(dst, func(w io.Writer) error {
		return enc.Encode(w, img)
	}); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// quantShift drops the low bits of each channel when bucketing colors.
const quantShift = 3

type bucket struct {
	count      int
	r, g, b, a int
}

// Paletted reduces img to at most size colors. The palette holds the most
// frequent colors after bucketing each channel to 5 bits, each entry being
// the mean of its bucket; pixels are mapped with Floyd-Steinberg dithering.
func Paletted(img image.Image, size int) *image.Paletted {
	b := img.Bounds()
	buckets := make(map[uint32]*bucket)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			key := uint32(c.R>>quantShift)<<15 | uint32(c.G>>quantShift)<<10 |
				uint32(c.B>>quantShift)<<5 | uint32(c.A>>quantShift)
			bk := buckets[key]
			if bk == nil {
				bk = &bucket{}
				buckets[key] = bk
			}
			bk.count++
			bk.r += int(c.R)
			bk.g += int(c.G)
			bk.b += int(c.B)
			bk.a += int(c.A)
		}
	}

	keys := make([]uint32, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := buckets[keys[i]].count, buckets[keys[j]].count
		if ci != cj {
			return ci > cj
		}
		return keys[i] < keys[j]
	})
	if len(keys) > size {
		keys = keys[:size]
	}

	pal := make(color.Palette, 0, max(len(keys), 1))
	for _, k := range keys {
		bk := buckets[k]
		pal = append(pal, color.NRGBA{
			R: uint8(bk.r / bk.count),
			G: uint8(bk.g / bk.count),
			B: uint8(bk.b / bk.count),
			A: uint8(bk.a / bk.count),
		})
	}
	if len(pal) == 0 {
		pal = append(pal, color.Transparent)
	}

	dst := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), pal)
	draw.FloydSteinberg.Draw(dst, dst.Bounds(), img, b.Min)
	return dst
}
