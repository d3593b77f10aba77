package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	uaMacChrome     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	uaIPhone        = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaWinEdge       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36 Edg/120.0"
	uaLinuxFx       = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaIPad          = "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/604.1"
	uaAndroidPhone  = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36"
	uaAndroidTablet = "Mozilla/5.0 (Linux; Android 13; SM-X710) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

func newClientSet(t *testing.T) *SignatureSet {
	t.Helper()
	sigs, err := LoadSignatures("", "", "")
	require.NoError(t, err)
	return sigs
}

func TestClassifyDevice(t *testing.T) {
	sigs := newClientSet(t)

	tests := []struct {
		name string
		ua   string
		want string
	}{
		{"mac desktop", uaMacChrome, "desktop"},
		{"iphone", uaIPhone, "mobile"},
		{"ipad", uaIPad, "tablet"},
		{"android phone", uaAndroidPhone, "mobile"},
		// Android without the Mobile token is a tablet.
		{"android tablet", uaAndroidTablet, "tablet"},
		{"empty agent", "", "unknown"},
		{"unmatched agent", "SomethingNew/1.0", "desktop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sigs.ClassifyDevice(tt.ua))
		})
	}
}

func TestClassifyBrowser(t *testing.T) {
	sigs := newClientSet(t)

	assert.Equal(t, "chrome", sigs.ClassifyBrowser(uaMacChrome))
	assert.Equal(t, "safari", sigs.ClassifyBrowser(uaIPhone))
	assert.Equal(t, "edge", sigs.ClassifyBrowser(uaWinEdge), "edge embeds chrome and must win")
	assert.Equal(t, "firefox", sigs.ClassifyBrowser(uaLinuxFx))
	assert.Equal(t, "chrome", sigs.ClassifyBrowser(uaAndroidTablet))
}

func TestClassifyOS(t *testing.T) {
	sigs := newClientSet(t)

	assert.Equal(t, "MacOS", sigs.ClassifyOS(uaMacChrome))
	assert.Equal(t, "iOS", sigs.ClassifyOS(uaIPhone))
	assert.Equal(t, "iOS", sigs.ClassifyOS(uaIPad), "apple mobile agents also carry Mac OS X")
	assert.Equal(t, "Windows", sigs.ClassifyOS(uaWinEdge))
	assert.Equal(t, "Linux", sigs.ClassifyOS(uaLinuxFx))
	assert.Equal(t, "Android", sigs.ClassifyOS(uaAndroidPhone), "android agents also carry Linux")
}
