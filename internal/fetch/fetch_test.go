package fetch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/feiju-bot/feiju/internal/errors"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache { return &memoryCache{data: make(map[string][]byte)} }

func (m *memoryCache) Get(k string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[k]
	return v, ok, nil
}

func (m *memoryCache) Set(k string, v []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[k] = v
	return nil
}

type countingLimiter struct{ keys []string }

func (l *countingLimiter) Wait(_ context.Context, key string) error {
	l.keys = append(l.keys, key)
	return nil
}

func TestClient_FetchImage(t *testing.T) {
	img := testPNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	}))
	defer srv.Close()

	limiter := &countingLimiter{}
	c := NewClient(Options{Limiter: limiter})

	data, err := c.Fetch(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, img, data)

	u, _ := url.Parse(srv.URL)
	assert.Equal(t, []string{u.Hostname()}, limiter.keys)
}

func TestClient_FetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/big":
			_, _ = w.Write(bytes.Repeat([]byte{0xff}, 2048))
		case "/empty":
		case "/slow":
			time.Sleep(300 * time.Millisecond)
			_, _ = w.Write([]byte("late"))
		}
	}))
	defer srv.Close()

	c := NewClient(Options{MaxBytes: 1024, Timeout: 100 * time.Millisecond})

	tests := []struct {
		name string
		url  string
		code domainerrors.Code
	}{
		{name: "empty url", url: "", code: domainerrors.CodeValidation},
		{name: "bad scheme", url: "ftp://example.com/a.png", code: domainerrors.CodeValidation},
		{name: "no host", url: "http:///a.png", code: domainerrors.CodeValidation},
		{name: "non-2xx", url: srv.URL + "/missing", code: domainerrors.CodeNetworkFailure},
		{name: "too large", url: srv.URL + "/big", code: domainerrors.CodeValidation},
		{name: "empty body", url: srv.URL + "/empty", code: domainerrors.CodeCorruptMedia},
		{name: "timeout", url: srv.URL + "/slow", code: domainerrors.CodeNetworkFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Fetch(context.Background(), tt.url)
			require.Error(t, err)
			assert.Equal(t, tt.code, domainerrors.CodeOf(err))
		})
	}
}

func TestClient_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(Options{}).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNetworkFailure))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_FollowsPageImage(t *testing.T) {
	img := testPNG(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html><html><head>
<title>post</title>
<meta name="twitter:image" content="/other.png">
<meta property="og:image" content="/media/cat.png?size=large&amp;v=2">
</head><body><img src="/ignored.png"></body></html>`)
	})
	mux.HandleFunc("/media/cat.png", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "large", r.URL.Query().Get("size"))
		assert.Equal(t, "2", r.URL.Query().Get("v"))
		_, _ = w.Write(img)
	})
	mux.HandleFunc("/nothing", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><head><title>x</title></head><body></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Options{})

	data, err := c.Fetch(context.Background(), srv.URL+"/post")
	require.NoError(t, err)
	assert.Equal(t, img, data)

	_, err = c.Fetch(context.Background(), srv.URL+"/nothing")
	assert.Equal(t, domainerrors.CodeCorruptMedia, domainerrors.CodeOf(err))
}

func TestClient_Cache(t *testing.T) {
	img := testPNG(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write(img)
	}))
	defer srv.Close()

	c := NewClient(Options{Cache: newMemoryCache()})
	for range 3 {
		data, err := c.Fetch(context.Background(), srv.URL+"/a.png")
		require.NoError(t, err)
		assert.Equal(t, img, data)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestExtractImageURL(t *testing.T) {
	base, _ := url.Parse("https://example.com/posts/1")

	tests := []struct {
		name string
		page string
		want string
	}{
		{
			name: "secure url preferred",
			page: `<html><head><meta property="og:image" content="http://a/1.png"><meta property="og:image:secure_url" content="https://a/1.png"></head></html>`,
			want: "https://a/1.png",
		},
		{
			name: "relative twitter image",
			page: `<html><head><meta name="Twitter:Image" content="../img/2.gif"></head></html>`,
			want: "https://example.com/img/2.gif",
		},
		{
			name: "body meta ignored",
			page: `<html><head></head><body><meta property="og:image" content="https://a/3.png"></body></html>`,
		},
		{
			name: "non-http scheme ignored",
			page: `<html><head><meta property="og:image" content="data:image/png;base64,AAAA"></head></html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, ok := extractImageURL([]byte(tt.page), base)
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, u.String())
		})
	}
}
