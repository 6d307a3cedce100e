package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"DefectVision/pkg/model"
)

var ErrDecode = errors.New("could not decode image")

// Decode returns the image and the registered format name ("jpeg", "png", ...).
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrDecode
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrDecode)
	}
	return img, format, nil
}

// ToRGB copies img into a straight-alpha RGB buffer. Alpha is dropped rather
// than composited, and grayscale or paletted sources are expanded to three
// equal channels.
func ToRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			c.A = 0xff
			dst.SetNRGBA(x, y, c)
		}
	}
	return dst
}

// Resize scales img to size x size with bilinear interpolation, ignoring the
// source aspect ratio.
func Resize(img image.Image, size int) image.Image {
	return resize.Resize(uint(size), uint(size), img, resize.Bilinear)
}

// ToTensor lays img out as a [1, H, W, 3] tensor of RGB values scaled to [0, 1].
func ToTensor(img image.Image) model.Tensor {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	data := make([]float32, 0, h*w*3)

	const scale = float32(1.0 / 255.0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			data = append(data,
				float32(r>>8)*scale,
				float32(g>>8)*scale,
				float32(bl>>8)*scale,
			)
		}
	}

	return model.Tensor{
		Shape: []int64{1, int64(h), int64(w), 3},
		Data:  data,
	}
}

// Preprocess is the full path from uploaded bytes to the network input.
func Preprocess(data []byte, size int) (model.Tensor, string, error) {
	img, format, err := Decode(data)
	if err != nil {
		return model.Tensor{}, "", err
	}
	return ToTensor(Resize(ToRGB(img), size)), format, nil
}
