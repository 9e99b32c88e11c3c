package imageprocessor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

const (
	// InputSize is the square edge length the classifier expects.
	InputSize = 224
	// Channels is the number of colour channels fed to the classifier.
	Channels = 3
	// ThumbnailSize is the edge length of history gallery thumbnails.
	ThumbnailSize = 150
	// PreviewMaxEdge bounds the longer edge of the uploaded-image preview.
	PreviewMaxEdge = 512
	// PreviewContentType is the media type of Preview output.
	PreviewContentType = "image/jpeg"
	// MaxPixels bounds the decoded image area (4000×4000).
	MaxPixels = 16_000_000
)

var (
	// ErrUnsupportedFormat is returned for bytes that are not a valid JPEG or PNG.
	ErrUnsupportedFormat = errors.New("unsupported image format: expected JPEG or PNG")
	// ErrImageTooLarge is returned when the declared dimensions exceed MaxPixels.
	ErrImageTooLarge = errors.New("image dimensions too large")
)

// Tensor is a batch of one NHWC float32 image with values in [0,1].
type Tensor struct {
	Shape [4]int64
	Data  []float32
}

// Bytes encodes the tensor data as little-endian float32.
func (t Tensor) Bytes() []byte {
	buf := make([]byte, 4*len(t.Data))
	for i, v := range t.Data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// TensorFromBytes reverses Tensor.Bytes for a 1×224×224×3 tensor.
func TensorFromBytes(b []byte) (Tensor, error) {
	want := 4 * InputSize * InputSize * Channels
	if len(b) != want {
		return Tensor{}, fmt.Errorf("tensor payload: expected %d bytes, got %d", want, len(b))
	}
	data := make([]float32, len(b)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return Tensor{Shape: inputShape(), Data: data}, nil
}

func inputShape() [4]int64 {
	return [4]int64{1, InputSize, InputSize, Channels}
}

// Decode parses JPEG or PNG bytes.
func Decode(data []byte) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if format != "jpeg" && format != "png" {
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedFormat, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedFormat)
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return img, nil
}

// ToRGB copies img into an opaque 8-bit RGB image. Alpha is dropped without
// compositing and grayscale is expanded to three equal channels.
func ToRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if src, ok := img.(*image.NRGBA); ok {
		rowLen := 4 * b.Dx()
		for y := 0; y < b.Dy(); y++ {
			start := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+rowLen], src.Pix[start:start+rowLen])
		}
	} else {
		// draw has fast paths into *image.RGBA for the decoder outputs; the
		// premultiplied result is then converted back in place.
		premul := &image.RGBA{Pix: dst.Pix, Stride: dst.Stride, Rect: dst.Rect}
		draw.Draw(premul, premul.Rect, img, b.Min, draw.Src)
		unpremultiply(dst.Pix)
	}

	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// unpremultiply matches color.NRGBAModel on 8-bit premultiplied pixels.
func unpremultiply(pix []uint8) {
	for i := 0; i+3 < len(pix); i += 4 {
		a := uint32(pix[i+3])
		switch a {
		case 0xff:
			continue
		case 0:
			pix[i], pix[i+1], pix[i+2] = 0, 0, 0
			continue
		}
		for k := 0; k < 3; k++ {
			pix[i+k] = uint8((uint32(pix[i+k]) * 0xffff / a) >> 8)
		}
	}
}

// opaqueRGB returns img unchanged when it is already the output of ToRGB.
func opaqueRGB(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Opaque() {
		return n
	}
	return ToRGB(img)
}

// ToTensor converts img into the classifier input: RGB, 224×224 bilinear,
// values scaled from [0,255] to [0,1], batch of one.
func ToTensor(img image.Image) Tensor {
	resized := resize.Resize(InputSize, InputSize, opaqueRGB(img), resize.Bilinear)
	b := resized.Bounds()

	data := make([]float32, 0, InputSize*InputSize*Channels)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := resized.At(x, y).RGBA()
			data = append(data,
				float32(r>>8)/255.0,
				float32(g>>8)/255.0,
				float32(bl>>8)/255.0,
			)
		}
	}
	return Tensor{Shape: inputShape(), Data: data}
}

// Thumbnail renders a 150×150 RGB PNG of img for the history gallery.
func Thumbnail(img image.Image) ([]byte, error) {
	thumb := resize.Resize(ThumbnailSize, ThumbnailSize, opaqueRGB(img), resize.Bilinear)
	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// PreviewSize fits w×h inside PreviewMaxEdge, keeping the aspect ratio and
// never upscaling.
func PreviewSize(w, h int) (int, int) {
	if w <= PreviewMaxEdge && h <= PreviewMaxEdge {
		return w, h
	}
	if w >= h {
		return PreviewMaxEdge, max(1, h*PreviewMaxEdge/w)
	}
	return max(1, w*PreviewMaxEdge/h), PreviewMaxEdge
}

// Preview renders a display-sized JPEG of the uploaded image.
func Preview(img image.Image) ([]byte, error) {
	src := opaqueRGB(img)
	w, h := PreviewSize(src.Bounds().Dx(), src.Bounds().Dy())

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
