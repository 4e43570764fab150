package imageprep

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/inferkit/core"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestTensor_ShapeAndRange(t *testing.T) {
	p := New(0, 0)
	tensor, err := p.Tensor(encodePNG(t, solid(64, 48, color.RGBA{R: 255, G: 128, B: 0, A: 255})))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 224, 224, 3}, tensor.Shape)
	assert.Len(t, tensor.Data, 224*224*3)
	assert.Equal(t, tensor.Size(), len(tensor.Data))
	for _, v := range tensor.Data {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
	assert.InDelta(t, 1.0, tensor.Data[0], 0.01)
	assert.InDelta(t, 128.0/255, tensor.Data[1], 0.01)
	assert.InDelta(t, 0.0, tensor.Data[2], 0.01)
}

func TestTensor_GrayscaleBecomesRGB(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range gray.Pix {
		gray.Pix[i] = 51
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, gray, &jpeg.Options{Quality: 100}))

	tensor, err := New(8, 4).Tensor(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 8, 3}, tensor.Shape)
	assert.InDelta(t, tensor.Data[0], tensor.Data[1], 1e-6)
	assert.InDelta(t, tensor.Data[1], tensor.Data[2], 1e-6)
	assert.InDelta(t, 0.2, tensor.Data[0], 0.02)
}

func TestTensor_Undecodable(t *testing.T) {
	p := New(224, 224)
	_, err := p.Tensor([]byte("definitely not an image"))
	require.Error(t, err)
	assert.True(t, core.IsInvalidInput(err))

	_, err = p.Tensor(nil)
	assert.True(t, core.IsInvalidInput(err))
}

func TestDecode_Format(t *testing.T) {
	_, format, err := Decode(encodePNG(t, solid(2, 2, color.White)))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}
