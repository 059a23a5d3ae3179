package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feiju-bot/feiju/internal/imagehash"
	"github.com/feiju-bot/feiju/internal/media/images"
	"github.com/feiju-bot/feiju/internal/search"
	"github.com/feiju-bot/feiju/internal/store/sqlite"

	domainerrors "github.com/feiju-bot/feiju/internal/errors"
)

// stubFetcher serves registered URLs from memory.
type stubFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
	calls int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{files: make(map[string][]byte)}
}

func (f *stubFetcher) put(url string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[url] = data
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	data, ok := f.files[url]
	if !ok {
		return nil, domainerrors.NetworkFailure(errors.New("status 404"), "download failed")
	}
	return data, nil
}

type testEnv struct {
	store   *sqlite.Store
	fetcher *stubFetcher
	memes   *MemeService
	aliases *AliasService
	index   *search.NameIndex
	dbPath  string
}

// setupTestServices wires both services against a temp-dir SQLite store.
func setupTestServices(t *testing.T, withIndex bool, opts ...MemeOption) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dbPath := filepath.Join(t.TempDir(), "memes.db")
	s, err := sqlite.Open(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	env := &testEnv{store: s, fetcher: newStubFetcher(), dbPath: dbPath}

	if withIndex {
		index, err := search.NewNameIndex(search.Options{Logger: logger})
		require.NoError(t, err)
		t.Cleanup(func() { index.Close() })
		s.SetNameIndexer(index)
		env.index = index
		opts = append(opts, WithNameIndex(index))
	}

	env.memes = NewMemeService(
		s,
		env.fetcher,
		images.NewNormalizer(images.DefaultMaxDimension, logger),
		imagehash.NewComparator(imagehash.DefaultThreshold),
		logger,
		opts...,
	)
	env.aliases = NewAliasService(s, logger)
	return env
}

// blockyImage draws 8x8 blocks of seeded random grey levels. Different seeds
// give perceptual hashes far apart; the same seed always gives the same image.
func blockyImage(seed uint64, size int) image.Image {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	block := size / 8
	for by := 0; by < 8; by++ {
		for bx := 0; bx < 8; bx++ {
			v := uint8(rng.IntN(256))
			c := color.RGBA{R: v, G: v, B: v, A: 255}
			for y := by * block; y < (by+1)*block; y++ {
				for x := bx * block; x < (bx+1)*block; x++ {
					img.Set(x, y, c)
				}
			}
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

// memePNG returns a distinct small PNG per seed.
func memePNG(t *testing.T, seed uint64) []byte {
	t.Helper()
	return pngBytes(t, blockyImage(seed, 64))
}
