package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLogo = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10" width="10" height="10">
<rect x="0" y="0" width="10" height="10" fill="#ffffff"/>
</svg>`

func TestRasterizeSVG(t *testing.T) {
	img, err := RasterizeSVG([]byte(testLogo), 20, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())

	_, _, _, a := img.At(10, 10).RGBA()
	assert.NotZero(t, a, "filled rect covers the centre")
}

func TestRasterizeSVGRejectsGarbage(t *testing.T) {
	_, err := RasterizeSVG([]byte("not svg"), 20, 20)
	assert.Error(t, err)
}

func TestSplashSequence(t *testing.T) {
	d := &recorder{}
	Splash(context.Background(), d, []byte(testLogo), "1.0.0", 0)

	require.Len(t, d.ops("fillScreen"), 2, "cleared before and after")
	assert.Len(t, d.ops("drawImage"), 1)
	text := d.ops("drawString")
	require.Len(t, text, 2)
	assert.Equal(t, "Made for", text[0].text)
	assert.Contains(t, text[1].text, "1.0.0")
}

func TestSplashWithoutLogo(t *testing.T) {
	d := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Splash(ctx, d, nil, "dev", SplashHold)

	assert.Empty(t, d.ops("drawImage"))
	assert.Len(t, d.ops("fillScreen"), 2)
}
