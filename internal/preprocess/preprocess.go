// Package preprocess turns uploaded image bytes into the tensor the emotion
// model was trained on.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/Brownie44l1/fer-service/internal/model"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrInvalidImage = errors.New("not a valid image")
	ErrPreprocess   = errors.New("failed to process image")
)

// Filter matches Pillow's default Image.resize resampling.
var Filter = resize.Bicubic

// Preprocess decodes r and converts it to a normalized (1,224,224,3) tensor.
func Preprocess(r io.Reader) (model.Tensor, error) {
	img, _, err := Decode(r)
	if err != nil {
		return model.Tensor{}, err
	}
	return ToTensor(img)
}

// Decode reads an image in any registered format. Unrecognized bytes yield
// ErrInvalidImage; a known format with corrupt data yields ErrPreprocess.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", fmt.Errorf("%w: %w", ErrInvalidImage, err)
		}
		return nil, format, fmt.Errorf("%w: decode %s: %w", ErrPreprocess, format, err)
	}
	return img, format, nil
}

// ToTensor converts img to RGB, resizes it to 224x224 and scales each
// channel into [0,1].
func ToTensor(img image.Image) (model.Tensor, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return model.Tensor{}, fmt.Errorf("%w: empty image %dx%d", ErrPreprocess, b.Dx(), b.Dy())
	}

	resized := resize.Resize(model.ImageSize, model.ImageSize, ToRGB(img), Filter)
	rgba, ok := resized.(*image.RGBA)
	if !ok {
		rgba = ToRGB(resized)
	}

	data := make([]float32, model.TensorLen)
	for y := 0; y < model.ImageSize; y++ {
		row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+model.ImageSize*4]
		for x := 0; x < model.ImageSize; x++ {
			i := (y*model.ImageSize + x) * model.Channels
			data[i] = float32(row[x*4]) / 255.0
			data[i+1] = float32(row[x*4+1]) / 255.0
			data[i+2] = float32(row[x*4+2]) / 255.0
		}
	}

	return model.Tensor{Data: data}, nil
}

// ToRGB returns an opaque copy of img anchored at the origin. Alpha is
// dropped without compositing, grayscale and palette images are expanded.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			s := src.Pix[y*src.Stride : y*src.Stride+b.Dx()*4]
			d := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()*4]
			for i := 0; i < len(s); i += 4 {
				d[i], d[i+1], d[i+2], d[i+3] = s[i], s[i+1], s[i+2], 0xff
			}
		}
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			s := src.Pix[y*src.Stride : y*src.Stride+b.Dx()]
			d := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()*4]
			for i, v := range s {
				d[i*4], d[i*4+1], d[i*4+2], d[i*4+3] = v, v, v, 0xff
			}
		}
	default:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
			}
		}
	}

	return dst
}
