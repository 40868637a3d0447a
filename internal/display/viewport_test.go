package display_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/omochice/toy-screen-stream/internal/display"
)

func TestFit(t *testing.T) {
	tests := []struct {
		name string
		src  image.Rectangle
		dst  image.Rectangle
		want image.Rectangle
	}{
		{
			name: "same aspect",
			src:  image.Rect(0, 0, 800, 450),
			dst:  image.Rect(0, 0, 1600, 900),
			want: image.Rect(0, 0, 1600, 900),
		},
		{
			name: "taller source is pillarboxed",
			src:  image.Rect(0, 0, 800, 600),
			dst:  image.Rect(0, 0, 1600, 900),
			want: image.Rect(200, 0, 1400, 900),
		},
		{
			name: "wider source is letterboxed",
			src:  image.Rect(0, 0, 1000, 100),
			dst:  image.Rect(0, 0, 100, 100),
			want: image.Rect(0, 45, 100, 55),
		},
		{
			name: "empty source",
			src:  image.Rectangle{},
			dst:  image.Rect(0, 0, 100, 100),
			want: image.Rectangle{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := display.Fit(tt.src, tt.dst); got != tt.want {
				t.Errorf("Fit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestViewport_Present(t *testing.T) {
	v := display.NewViewport(160, 90)

	src := image.NewRGBA(image.Rect(0, 0, 40, 30))
	red := color.RGBA{R: 255, A: 255}
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			src.SetRGBA(x, y, red)
		}
	}

	v.Present(src)

	if got := v.Presented(); got != 1 {
		t.Errorf("Presented() = %d, want 1", got)
	}

	snap := v.Snapshot()
	if got := snap.RGBAAt(80, 45); got != red {
		t.Errorf("center pixel = %v, want %v", got, red)
	}
	// 4:3 into 16:9 leaves black bars on the sides.
	if got := snap.RGBAAt(2, 45); got != (color.RGBA{A: 255}) {
		t.Errorf("pillarbox pixel = %v, want opaque black", got)
	}
}

func TestViewport_IgnoresEmptyFrame(t *testing.T) {
	v := display.NewViewport(10, 10)
	v.Present(nil)
	v.Present(image.NewRGBA(image.Rectangle{}))

	if got := v.Presented(); got != 0 {
		t.Errorf("Presented() = %d, want 0", got)
	}
}

func TestSinkFunc(t *testing.T) {
	var got *image.RGBA
	var sink display.Sink = display.SinkFunc(func(img *image.RGBA) { got = img })

	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	sink.Present(img)
	if got != img {
		t.Error("SinkFunc did not forward the image")
	}
}
