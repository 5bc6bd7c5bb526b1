package field

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// WeightChannels is the number of blended surface layers per texel.
const WeightChannels = 4

// Weightmap is one chunk's 4-channel surface weight raster. Each texel's
// channel bytes always sum to exactly 255; every mutating method re-enforces
// that invariant.
type Weightmap struct {
	Resolution int
	Data       []byte // Resolution*Resolution*4, texel-interleaved
}

// NewBlankWeightmap builds an all-base raster: channel 0 at 255, the rest 0.
func NewBlankWeightmap(resolution int) *Weightmap {
	if resolution < 1 {
		resolution = 1
	}
	wm := &Weightmap{
		Resolution: resolution,
		Data:       make([]byte, resolution*resolution*WeightChannels),
	}
	for i := 0; i < len(wm.Data); i += WeightChannels {
		wm.Data[i] = 255
	}
	return wm
}

func (wm *Weightmap) index(x, y int) int {
	return (y*wm.Resolution + x) * WeightChannels
}

func (wm *Weightmap) inBounds(x, y int) bool {
	return x >= 0 && x < wm.Resolution && y >= 0 && y < wm.Resolution
}

// At returns the four channel weights of a texel.
func (wm *Weightmap) At(x, y int) [WeightChannels]byte {
	var out [WeightChannels]byte
	if !wm.inBounds(x, y) {
		return out
	}
	copy(out[:], wm.Data[wm.index(x, y):])
	return out
}

// Clone deep-copies the raster.
func (wm *Weightmap) Clone() *Weightmap {
	out := &Weightmap{Resolution: wm.Resolution, Data: make([]byte, len(wm.Data))}
	copy(out.Data, wm.Data)
	return out
}

// AddWeight raises one channel of a texel by amount and removes the same
// total from the other channels, proportionally to their magnitudes, so the
// four values keep summing to 255. Rounding residue is absorbed by the
// largest remaining channel.
func (wm *Weightmap) AddWeight(x, y, channel int, amount float32) {
	if !wm.inBounds(x, y) || channel < 0 || channel >= WeightChannels {
		return
	}
	i := wm.index(x, y)

	var w [WeightChannels]int
	for c := 0; c < WeightChannels; c++ {
		w[c] = int(wm.Data[i+c])
	}
	rescaleTo255(&w)

	delta := int(math.Round(float64(amount)))
	if delta > 255-w[channel] {
		delta = 255 - w[channel]
	}
	if delta > 0 {
		// Others sum to exactly 255-w[channel] >= delta, so removal below
		// always terminates with the full delta taken.
		othersTotal := 255 - w[channel]
		w[channel] += delta

		removed := 0
		for c := 0; c < WeightChannels; c++ {
			if c == channel || w[c] == 0 {
				continue
			}
			take := delta * w[c] / othersTotal
			if take > w[c] {
				take = w[c]
			}
			w[c] -= take
			removed += take
		}
		for residual := delta - removed; residual > 0; {
			largest := -1
			for c := 0; c < WeightChannels; c++ {
				if c == channel || w[c] == 0 {
					continue
				}
				if largest < 0 || w[c] > w[largest] {
					largest = c
				}
			}
			if largest < 0 {
				break
			}
			take := residual
			if take > w[largest] {
				take = w[largest]
			}
			w[largest] -= take
			residual -= take
		}
	}

	for c := 0; c < WeightChannels; c++ {
		wm.Data[i+c] = byte(w[c])
	}
}

// Stamp applies a radial brush at texel-space center (cx,cy) with falloff
// (1-d/r)^2 scaled by strength*255, through the normalizing AddWeight path.
func (wm *Weightmap) Stamp(cx, cy, radius, strength float32, channel int) {
	if radius <= 0 {
		wm.AddWeight(int(cx), int(cy), channel, strength*255)
		return
	}
	minX := int(math.Floor(float64(cx - radius)))
	maxX := int(math.Ceil(float64(cx + radius)))
	minY := int(math.Floor(float64(cy - radius)))
	maxY := int(math.Ceil(float64(cy + radius)))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if !wm.inBounds(x, y) {
				continue
			}
			dx := float32(x) - cx
			dy := float32(y) - cy
			dist := float32(math.Sqrt(float64(dx*dx + dy*dy)))
			if dist > radius {
				continue
			}
			fall := 1 - dist/radius
			wm.AddWeight(x, y, channel, strength*255*fall*fall)
		}
	}
}

// BoxBlur runs `passes` iterations of a 3x3 box blur over all four channels
// jointly, clamping out-of-bounds taps to the nearest in-bounds texel and
// renormalizing every texel after each pass.
func (wm *Weightmap) BoxBlur(passes int) {
	if passes <= 0 || wm.Resolution < 1 {
		return
	}
	res := wm.Resolution
	next := make([]byte, len(wm.Data))

	for pass := 0; pass < passes; pass++ {
		for y := 0; y < res; y++ {
			for x := 0; x < res; x++ {
				var acc [WeightChannels]int
				for oy := -1; oy <= 1; oy++ {
					for ox := -1; ox <= 1; ox++ {
						sx := clampInt(x+ox, 0, res-1)
						sy := clampInt(y+oy, 0, res-1)
						si := wm.index(sx, sy)
						for c := 0; c < WeightChannels; c++ {
							acc[c] += int(wm.Data[si+c])
						}
					}
				}
				var w [WeightChannels]int
				for c := 0; c < WeightChannels; c++ {
					w[c] = (acc[c] + 4) / 9 // rounded average of 9 taps
				}
				rescaleTo255(&w)
				di := wm.index(x, y)
				for c := 0; c < WeightChannels; c++ {
					next[di+c] = byte(w[c])
				}
			}
		}
		wm.Data, next = next, wm.Data
	}
}

// Encode serializes the raster as the raw resolution*resolution*4 byte blob
// used for persistence.
func (wm *Weightmap) Encode() []byte {
	out := make([]byte, len(wm.Data))
	copy(out, wm.Data)
	return out
}

// DecodeWeightmap rebuilds a raster from its encoded blob.
func DecodeWeightmap(data []byte, resolution int) (*Weightmap, error) {
	want := resolution * resolution * WeightChannels
	if resolution < 1 || len(data) != want {
		return nil, fmt.Errorf("weightmap blob: got %d bytes, want %d", len(data), want)
	}
	wm := &Weightmap{Resolution: resolution, Data: make([]byte, want)}
	copy(wm.Data, data)
	return wm, nil
}

// Resample rescales the raster to a new resolution with Catmull-Rom
// filtering, renormalizing each destination texel afterwards.
func (wm *Weightmap) Resample(resolution int) *Weightmap {
	if resolution < 1 || resolution == wm.Resolution {
		return wm.Clone()
	}
	src := &image.RGBA{
		Pix:    wm.Data,
		Stride: wm.Resolution * WeightChannels,
		Rect:   image.Rect(0, 0, wm.Resolution, wm.Resolution),
	}
	dst := image.NewRGBA(image.Rect(0, 0, resolution, resolution))
	draw.CatmullRom.Scale(dst, dst.Rect, src, src.Rect, draw.Src, nil)

	out := &Weightmap{Resolution: resolution, Data: dst.Pix}
	for i := 0; i < len(out.Data); i += WeightChannels {
		var w [WeightChannels]int
		for c := 0; c < WeightChannels; c++ {
			w[c] = int(out.Data[i+c])
		}
		rescaleTo255(&w)
		for c := 0; c < WeightChannels; c++ {
			out.Data[i+c] = byte(w[c])
		}
	}
	return out
}

// rescaleTo255 proportionally scales the channel values so they sum to
// exactly 255. An all-zero texel collapses to pure base channel.
func rescaleTo255(w *[WeightChannels]int) {
	sum := 0
	for _, v := range w {
		sum += v
	}
	if sum == 255 {
		return
	}
	if sum == 0 {
		w[0] = 255
		return
	}
	total := 0
	largest := 0
	for c := 0; c < WeightChannels; c++ {
		w[c] = w[c] * 255 / sum
		total += w[c]
		if w[c] > w[largest] {
			largest = c
		}
	}
	w[largest] += 255 - total
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
