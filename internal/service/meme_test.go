package service

import (
	"bytes"
	"context"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feiju-bot/feiju/internal/domain"
	"github.com/feiju-bot/feiju/internal/imagehash"
	"github.com/feiju-bot/feiju/internal/ratelimit"
	"github.com/feiju-bot/feiju/internal/store"
	"github.com/feiju-bot/feiju/internal/store/sqlite"

	domainerrors "github.com/feiju-bot/feiju/internal/errors"
)

func TestMemeService_EndToEnd(t *testing.T) {
	env := setupTestServices(t, true)
	ctx := context.Background()

	x := memePNG(t, 1)
	env.fetcher.put("https://img/x.png", x)

	r := env.memes.AddMeme(ctx, "A", "https://img/x.png", "g1", false)
	require.Equal(t, OutcomeOK, r.Outcome, r.Text)
	assert.Equal(t, "成功添加A！", r.Text)

	r = env.memes.GetMeme(ctx, "A", "g1")
	require.Equal(t, OutcomeOK, r.Outcome)
	assert.Equal(t, x, r.Image)
	assert.Equal(t, "a", r.MatchedName)

	r = env.memes.AddMeme(ctx, "A", "https://img/x.png", "g1", false)
	require.Equal(t, OutcomeDuplicate, r.Outcome)
	assert.Equal(t, "水过了！你老冯的", r.Text)
	assert.Equal(t, x, r.Image)

	r = env.aliases.AddAlias(ctx, "A", "B", "g1")
	require.Equal(t, OutcomeOK, r.Outcome, r.Text)
	assert.Equal(t, "成功！以后叫 'b' 也可以。", r.Text)

	r = env.memes.GetMeme(ctx, "B", "g1")
	require.Equal(t, OutcomeOK, r.Outcome)
	assert.Equal(t, x, r.Image)

	r = env.memes.SyncMemes(ctx, "g1", "g2", "a")
	require.Equal(t, OutcomeOK, r.Outcome, r.Text)
	require.NotNil(t, r.Sync)
	assert.Equal(t, 1, r.Sync.Copied)
	assert.Equal(t, 0, r.Sync.Skipped)
	assert.True(t, strings.HasPrefix(r.Sync.RunID, "sync-"))
	assert.Equal(t, "同步完成！\n关键字: a\n成功同步: 1 张\n跳过重复: 0 张", r.Text)

	r = env.memes.GetMeme(ctx, "a", "g2")
	require.Equal(t, OutcomeOK, r.Outcome)
	assert.Equal(t, x, r.Image)

	refs, err := env.memes.ListImages(ctx, "a", "g1")
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestMemeService_GetMeme_NotFoundVersusEmpty(t *testing.T) {
	for _, withIndex := range []bool{false, true} {
		env := setupTestServices(t, withIndex)
		ctx := context.Background()

		_, err := env.store.CreateLibrary(ctx, "empty", "g1")
		require.NoError(t, err)

		r := env.memes.GetMeme(ctx, "Empty呀", "g1")
		assert.Equal(t, OutcomeEmpty, r.Outcome)
		assert.Equal(t, "empty", r.MatchedName)
		assert.Equal(t, "一张empty都没有，来鸡毛？", r.Text)

		r = env.memes.GetMeme(ctx, "nothing", "g1")
		assert.Equal(t, OutcomeNotFound, r.Outcome)
		assert.Equal(t, "一张nothing都没有，来鸡毛？", r.Text)
		assert.Empty(t, r.MatchedName)

		r = env.memes.GetMeme(ctx, "empty", "g2")
		assert.Equal(t, OutcomeNotFound, r.Outcome)
	}
}

func TestMemeService_GetMeme_LongestPrefix(t *testing.T) {
	for _, withIndex := range []bool{false, true} {
		env := setupTestServices(t, withIndex)
		ctx := context.Background()

		cat, catcat := memePNG(t, 10), memePNG(t, 11)
		env.fetcher.put("u:cat", cat)
		env.fetcher.put("u:catcat", catcat)
		require.True(t, env.memes.AddMeme(ctx, "猫", "u:cat", "g1", false).OK())
		require.True(t, env.memes.AddMeme(ctx, "猫猫", "u:catcat", "g1", false).OK())

		r := env.memes.GetMeme(ctx, "猫猫头", "g1")
		require.Equal(t, OutcomeOK, r.Outcome)
		assert.Equal(t, "猫猫", r.MatchedName)
		assert.Equal(t, catcat, r.Image)

		r = env.memes.GetMeme(ctx, "猫头", "g1")
		require.Equal(t, OutcomeOK, r.Outcome)
		assert.Equal(t, "猫", r.MatchedName)
		assert.Equal(t, cat, r.Image)
	}
}

// A second handle on the same file stands in for memectl, whose writes never
// reach this process's name index.
func TestMemeService_GetMeme_SeesOtherWriters(t *testing.T) {
	for _, withIndex := range []bool{false, true} {
		env := setupTestServices(t, withIndex)
		ctx := context.Background()

		other, err := sqlite.Open(env.dbPath, nil)
		require.NoError(t, err)
		t.Cleanup(func() { other.Close() })

		addExternal := func(name string, data []byte) {
			t.Helper()
			id, err := other.CreateLibrary(ctx, name, "g1")
			require.NoError(t, err)
			hash, err := imagehash.Compute(data)
			require.NoError(t, err)
			_, err = other.AddImage(ctx, id, data, hash.String())
			require.NoError(t, err)
		}

		cat, catcat := memePNG(t, 20), memePNG(t, 21)
		addExternal("猫", cat)

		r := env.memes.GetMeme(ctx, "猫猫头", "g1")
		require.Equal(t, OutcomeOK, r.Outcome, r.Text)
		assert.Equal(t, "猫", r.MatchedName)
		assert.Equal(t, cat, r.Image)

		// A longer name written elsewhere beats what the index already knows.
		addExternal("猫猫", catcat)

		r = env.memes.GetMeme(ctx, "猫猫头", "g1")
		require.Equal(t, OutcomeOK, r.Outcome, r.Text)
		assert.Equal(t, "猫猫", r.MatchedName)
		assert.Equal(t, catcat, r.Image)

		if withIndex {
			m, ok := env.index.LongestPrefix("g1", "猫猫头")
			require.True(t, ok)
			assert.Equal(t, "猫猫", m.Name)
		}
	}
}

func TestMemeService_GetMeme_Cooldown(t *testing.T) {
	limiter := ratelimit.New(0.001, 1)
	defer limiter.Stop()

	env := setupTestServices(t, false, WithCooldown(limiter))
	ctx := context.Background()

	assert.Equal(t, OutcomeNotFound, env.memes.GetMeme(ctx, "x", "g1").Outcome)
	r := env.memes.GetMeme(ctx, "x", "g1")
	assert.Equal(t, OutcomeRateLimited, r.Outcome)
	assert.Equal(t, "来太快了，歇会儿再来", r.Text)

	assert.Equal(t, OutcomeNotFound, env.memes.GetMeme(ctx, "x", "g2").Outcome)
}

func TestMemeService_AddMeme_Force(t *testing.T) {
	env := setupTestServices(t, false)
	ctx := context.Background()

	env.fetcher.put("u", memePNG(t, 2))
	require.True(t, env.memes.AddMeme(ctx, "a", "u", "g1", false).OK())

	r := env.memes.AddMeme(ctx, "a", "u", "g1", true)
	require.Equal(t, OutcomeOK, r.Outcome)
	assert.NotZero(t, r.ImageID)

	refs, err := env.memes.ListImages(ctx, "A", "g1")
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestMemeService_AddMeme_Failures(t *testing.T) {
	env := setupTestServices(t, false)
	ctx := context.Background()
	env.fetcher.put("u:text", []byte("definitely not an image"))

	tests := []struct {
		name    string
		meme    string
		url     string
		outcome Outcome
	}{
		{name: "network", meme: "a", url: "u:missing", outcome: OutcomeNetworkFailure},
		{name: "corrupt", meme: "a", url: "u:text", outcome: OutcomeCorruptMedia},
		{name: "empty name", meme: "  ", url: "u:text", outcome: OutcomeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := env.memes.AddMeme(ctx, tt.meme, tt.url, "g1", false)
			assert.Equal(t, tt.outcome, r.Outcome)
			assert.True(t, strings.HasPrefix(r.Text, "添加失败："), r.Text)
		})
	}

	// Failed adds leave no library behind.
	_, err := env.store.ResolveLibrary(ctx, "a", "g1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemeService_AddMeme_Normalizes(t *testing.T) {
	env := setupTestServices(t, false)
	ctx := context.Background()

	env.fetcher.put("u:big", pngBytes(t, blockyImage(3, 1024)))
	r := env.memes.AddMeme(ctx, "big", "u:big", "g1", false)
	require.Equal(t, OutcomeOK, r.Outcome, r.Text)

	img, err := env.memes.Image(ctx, r.ImageID)
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(img.Data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 512, cfg.Width)
	assert.Equal(t, 512, cfg.Height)

	// The same oversized upload normalizes to the same bytes, so it is a duplicate.
	r = env.memes.AddMeme(ctx, "big", "u:big", "g1", false)
	assert.Equal(t, OutcomeDuplicate, r.Outcome)
}

func TestMemeService_DeleteMeme(t *testing.T) {
	env := setupTestServices(t, false)
	ctx := context.Background()

	x := blockyImage(20, 64)
	env.fetcher.put("u:x", pngBytes(t, x))
	env.fetcher.put("u:y", memePNG(t, 21))
	env.fetcher.put("u:x-recoded", jpegBytes(t, x))
	require.True(t, env.memes.AddMeme(ctx, "A", "u:x", "g1", false).OK())
	require.True(t, env.memes.AddMeme(ctx, "A", "u:y", "g1", false).OK())

	r := env.memes.DeleteMeme(ctx, "A", "u:x-recoded", "g1")
	require.Equal(t, OutcomeOK, r.Outcome, r.Text)
	assert.Equal(t, "已删除！AHouse", r.Text)

	refs, err := env.memes.ListImages(ctx, "a", "g1")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	remaining, err := env.memes.Image(ctx, refs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, memePNG(t, 21), remaining.Data)

	r = env.memes.DeleteMeme(ctx, "A", "u:x", "g1")
	assert.Equal(t, OutcomeNotFound, r.Outcome)
	assert.Equal(t, "A已经被爱死了...", r.Text)

	r = env.memes.DeleteMeme(ctx, "nobody", "u:y", "g1")
	assert.Equal(t, OutcomeNotFound, r.Outcome)

	r = env.memes.DeleteMeme(ctx, "A", "u:gone", "g1")
	assert.Equal(t, OutcomeNetworkFailure, r.Outcome)
	assert.True(t, strings.HasSuffix(r.Text, "，A别走😭"), r.Text)
}

func TestMemeService_SyncMemes(t *testing.T) {
	env := setupTestServices(t, false)
	ctx := context.Background()

	r := env.memes.SyncMemes(ctx, "g9", "g2", "x")
	assert.Equal(t, OutcomeNotFound, r.Outcome)
	assert.Equal(t, "源 (g9) 没有关于 'x' 的图片。", r.Text)

	_, err := env.store.CreateLibrary(ctx, "hollow", "g1")
	require.NoError(t, err)
	r = env.memes.SyncMemes(ctx, "g1", "g2", "hollow")
	assert.Equal(t, OutcomeEmpty, r.Outcome)
	assert.Equal(t, "源 (g1) 的 'hollow' 是空的。", r.Text)

	env.fetcher.put("u:1", memePNG(t, 30))
	env.fetcher.put("u:2", memePNG(t, 31))
	require.True(t, env.memes.AddMeme(ctx, "a", "u:1", "g1", false).OK())
	require.True(t, env.memes.AddMeme(ctx, "a", "u:2", "g1", false).OK())
	require.True(t, env.memes.AddMeme(ctx, "a", "u:1", "private_42", false).OK())

	r = env.memes.SyncMemes(ctx, "g1", "P42", "A")
	require.Equal(t, OutcomeOK, r.Outcome, r.Text)
	assert.Equal(t, "private_42", r.Sync.TargetContext)
	assert.Equal(t, 1, r.Sync.Copied)
	assert.Equal(t, 1, r.Sync.Skipped)

	r = env.memes.SyncMemes(ctx, "g1", "p42", "a")
	require.Equal(t, OutcomeOK, r.Outcome)
	assert.Equal(t, 0, r.Sync.Copied)
	assert.Equal(t, 2, r.Sync.Skipped)

	// The source is never modified.
	refs, err := env.memes.ListImages(ctx, "a", "g1")
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestMemeService_Reindex(t *testing.T) {
	env := setupTestServices(t, false)
	ctx := context.Background()

	lib, err := env.store.CreateLibrary(ctx, "legacy", "g1")
	require.NoError(t, err)
	bigID, err := env.store.AddImage(ctx, lib, pngBytes(t, blockyImage(40, 1024)), "8000000000000000")
	require.NoError(t, err)
	_, err = env.store.AddImage(ctx, lib, []byte("garbage"), "0")
	require.NoError(t, err)

	small := memePNG(t, 41)
	smallHash, err := imagehash.Compute(small)
	require.NoError(t, err)
	_, err = env.store.AddImage(ctx, lib, small, smallHash.String())
	require.NoError(t, err)

	report, err := env.memes.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 1, report.Resized)
	assert.Equal(t, 1, report.Rehashed)
	assert.Equal(t, 1, report.Failed)
	assert.True(t, strings.HasPrefix(report.RunID, "reindex-"))

	img, err := env.memes.Image(ctx, bigID)
	require.NoError(t, err)
	want, err := imagehash.Compute(img.Data)
	require.NoError(t, err)
	assert.Equal(t, want.String(), img.Hash)

	report, err = env.memes.Reindex(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Resized)
	assert.Zero(t, report.Rehashed)
}

func TestMemeService_Suggest(t *testing.T) {
	env := setupTestServices(t, true)
	ctx := context.Background()

	_, err := env.store.CreateLibrary(ctx, "哆啦a梦", "g1")
	require.NoError(t, err)

	got, err := env.memes.Suggest(ctx, "g1", "哆啦", 5)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "哆啦a梦", got[0].Name)

	plain := setupTestServices(t, false)
	got, err = plain.memes.Suggest(ctx, "g1", "哆啦", 5)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemeService_Queries(t *testing.T) {
	env := setupTestServices(t, false)
	ctx := context.Background()

	env.fetcher.put("u", memePNG(t, 50))
	require.True(t, env.memes.AddMeme(ctx, "a", "u", "g1", false).OK())

	libs, err := env.memes.ListLibraries(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, libs, 1)
	assert.Equal(t, []string{"a"}, libs[0].Names)
	assert.Equal(t, 1, libs[0].ImageCount)

	contexts, err := env.memes.ListContexts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, contexts)

	_, err = env.memes.ListImages(ctx, "nope", "g1")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = env.memes.Image(ctx, 999)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	st, err := env.memes.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{Contexts: 1, Libraries: 1, Names: 1, Images: 1, Bytes: int64(len(memePNG(t, 50)))}, st)

}
