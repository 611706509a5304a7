package upload

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pngHeaderOnly returns a PNG whose header declares a w x h RGBA canvas but
// which carries no pixel data.
func pngHeaderOnly(w, h uint32) []byte {
	chunk := func(kind string, body []byte) []byte {
		var out []byte
		out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
		typed := append([]byte(kind), body...)
		out = append(out, typed...)
		return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(typed))
	}
	ihdr := binary.BigEndian.AppendUint32(nil, w)
	ihdr = binary.BigEndian.AppendUint32(ihdr, h)
	ihdr = append(ihdr, 8, 6, 0, 0, 0) // 8-bit RGBA, no interlace

	out := []byte("\x89PNG\r\n\x1a\n")
	out = append(out, chunk("IHDR", ihdr)...)
	return append(out, chunk("IEND", nil)...)
}

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name         string
		data         []byte
		wantMIME     string
		wantDetected bool
	}{
		{
			name:         "JPEG",
			data:         []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10},
			wantMIME:     "image/jpeg",
			wantDetected: true,
		},
		{
			name:         "PNG",
			data:         []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00},
			wantMIME:     "image/png",
			wantDetected: true,
		},
		{
			name:         "GIF",
			data:         []byte("GIF89a"),
			wantMIME:     "image/gif",
			wantDetected: true,
		},
		{
			name:         "WebP",
			data:         append([]byte("RIFF\x00\x00\x00\x00WEBP"), make([]byte, 10)...),
			wantMIME:     "image/webp",
			wantDetected: true,
		},
		{
			name:         "RIFF but not WebP",
			data:         append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 10)...),
			wantMIME:     "",
			wantDetected: false,
		},
		{
			name:         "PDF disguised as image",
			data:         []byte("%PDF-1.4 malicious content"),
			wantMIME:     "",
			wantDetected: false,
		},
		{
			name:         "empty",
			data:         []byte{},
			wantMIME:     "",
			wantDetected: false,
		},
		{
			name:         "too short for WebP check",
			data:         []byte("RIFF"),
			wantMIME:     "",
			wantDetected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMIME, gotDetected := DetectMIME(tt.data)
			assert.Equal(t, tt.wantDetected, gotDetected)
			assert.Equal(t, tt.wantMIME, gotMIME)
		})
	}
}

func TestThumbnailBoundsLongestEdge(t *testing.T) {
	preview, err := Thumbnail(pngBytes(t, 800, 400), 320)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(preview))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 160, img.Bounds().Dy())
}

func TestThumbnailKeepsSmallImages(t *testing.T) {
	preview, err := Thumbnail(pngBytes(t, 40, 30), 320)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(preview))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
}

func TestTrayAddRemoveRelease(t *testing.T) {
	tray := NewTray()

	a, err := tray.Add("a.png", pngBytes(t, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, "image/png", a.MimeType)
	assert.NotEmpty(t, a.Preview)

	b, err := tray.Add("b.png", pngBytes(t, 10, 10))
	require.NoError(t, err)

	images := tray.Images()
	require.Len(t, images, 2)
	assert.Equal(t, a.ID, images[0].ID)
	assert.Equal(t, b.ID, images[1].ID)

	assert.True(t, tray.Remove(a.ID))
	assert.False(t, tray.Remove(a.ID))
	_, ok := tray.Get(a.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, tray.Len())

	tray.Release()
	assert.Equal(t, 0, tray.Len())
}

func TestTrayRejectsNonImages(t *testing.T) {
	tray := NewTray()

	_, err := tray.Add("notes.txt", []byte("hello there, not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Equal(t, 0, tray.Len())
}

func TestTrayUndecodableImageHasNoPreview(t *testing.T) {
	tray := NewTray()
	jpegHeader := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 508)...)

	img, err := tray.Add("broken.jpg", jpegHeader)
	require.NoError(t, err)
	assert.Nil(t, img.Preview)
}

func TestThumbnailRefusesHugeCanvas(t *testing.T) {
	_, err := Thumbnail(pngHeaderOnly(20000, 20000), 320)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestTrayRejectsHugeCanvas(t *testing.T) {
	tray := NewTray()
	data := pngHeaderOnly(20000, 20000)
	mime, ok := DetectMIME(data)
	require.True(t, ok)
	require.Equal(t, "image/png", mime)

	_, err := tray.Add("bomb.png", data)
	assert.ErrorIs(t, err, ErrImageTooLarge)
	assert.Equal(t, 0, tray.Len())
}

func TestTrayAcceptsImageAtPixelBound(t *testing.T) {
	tray := NewTray()

	// Header only, so no preview, but the declared size is allowed.
	img, err := tray.Add("big.png", pngHeaderOnly(8000, 5000))
	require.NoError(t, err)
	assert.Nil(t, img.Preview)
}

func TestTrayFull(t *testing.T) {
	tray := NewTray()
	data := pngBytes(t, 2, 2)
	for i := 0; i < MaxImages; i++ {
		_, err := tray.Add("x.png", data)
		require.NoError(t, err)
	}

	_, err := tray.Add("one-more.png", data)
	assert.ErrorIs(t, err, ErrTrayFull)
	assert.Equal(t, MaxImages, tray.Len())

	tray.Remove(tray.Images()[0].ID)
	_, err = tray.Add("again.png", data)
	assert.NoError(t, err)
}

func TestTrayConcurrentAdd(t *testing.T) {
	tray := NewTray()
	data := pngBytes(t, 4, 4)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tray.Add("x.png", data)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, tray.Len())
}
