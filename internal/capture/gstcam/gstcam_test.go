package gstcam

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRGBToImageHandlesRowPadding(t *testing.T) {
	// 3x2 frame: 9 bytes per row, padded to 12.
	data := []byte{
		1, 2, 3, 4, 5, 6, 7, 8, 9, 0, 0, 0,
		10, 11, 12, 13, 14, 15, 16, 17, 18,
	}
	img, err := rgbToImage(data, 3, 2)
	require.NoError(t, err)

	require.Equal(t, []uint8{1, 2, 3, 255}, img.Pix[0:4])
	require.Equal(t, []uint8{7, 8, 9, 255}, img.Pix[8:12])
	row1 := img.Pix[img.Stride:]
	require.Equal(t, []uint8{10, 11, 12, 255}, row1[0:4])
	require.Equal(t, []uint8{16, 17, 18, 255}, row1[8:12])
}

func TestRGBToImageRejectsShortFrame(t *testing.T) {
	_, err := rgbToImage(make([]byte, 10), 4, 4)
	require.Error(t, err)
	require.Contains(t, err.Error(), "short frame")
}
