package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ogero/stremio-bilibili/pkg/bilibili"
	"github.com/ogero/stremio-bilibili/pkg/stremio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalogService struct {
	http.Handler
	mixedUserID string
	userID      string
	seasonID    string
}

func (f *fakeCatalogService) UserAnime(_ context.Context, userID string) []bilibili.CatalogItem {
	f.userID = userID
	return []bilibili.CatalogItem{{Title: "user", Status: bilibili.StatusWatching}}
}

func (f *fakeCatalogService) PopularAnime(context.Context) []bilibili.CatalogItem {
	return []bilibili.CatalogItem{{
		Title:  "popular",
		Status: bilibili.StatusPlanned,
		Cover:  "https://i0.hdslb.com/p.jpg",
		Year:   "2024",
		Genre:  []string{"日常"},
		Link:   "https://www.bilibili.com/bangumi/play/ss100",
	}}
}

func (f *fakeCatalogService) GuochuangAnime(context.Context) []bilibili.CatalogItem {
	return []bilibili.CatalogItem{{
		Title: "guochuang",
		Cover: bilibili.DefaultCover,
		Year:  bilibili.DefaultUnknown,
		Genre: []string{bilibili.DefaultUnknown},
	}, {
		Title: "guochuang2",
		Link:  "https://www.bilibili.com/bangumi/play/ss200?from=search#top",
	}, {
		Title: "guochuang3",
		Link:  "https://www.bilibili.com/",
	}}
}

func (f *fakeCatalogService) MixedAnime(_ context.Context, userID string) []bilibili.CatalogItem {
	f.mixedUserID = userID
	return []bilibili.CatalogItem{{Title: "mixed"}, {Title: "mixed2"}}
}

func (f *fakeCatalogService) Season(_ context.Context, seasonID string) []bilibili.CatalogItem {
	f.seasonID = seasonID
	return []bilibili.CatalogItem{}
}

func (f *fakeCatalogService) BroadcastStats(func(stats *Stats) error) error { return nil }

func (f *fakeCatalogService) StartPollingStats(context.Context, time.Duration) {}

func serve(t *testing.T, svc CatalogService, target string) *httptest.ResponseRecorder {
	t.Helper()
	app, err := NewApp(svc)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestManifestHandler(t *testing.T) {
	rec := serve(t, &fakeCatalogService{}, "/manifest.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var m stremio.Manifest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, []string{"catalog"}, m.Resources)
	require.Len(t, m.Catalogs, 3)
	assert.Equal(t, CatalogMixed, m.Catalogs[2].ID)
}

func TestCatalogHandler(t *testing.T) {
	t.Run("popular", func(t *testing.T) {
		rec := serve(t, &fakeCatalogService{}, "/catalog/series/bilibili-popular.json")
		require.Equal(t, http.StatusOK, rec.Code)

		var metas stremio.Metas
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metas))
		require.Len(t, metas.Metas, 1)
		assert.Equal(t, stremio.MetaPreview{
			ID:          "bilibili:ss100",
			Type:        "series",
			Name:        "popular",
			Poster:      "https://i0.hdslb.com/p.jpg",
			ReleaseInfo: "2024",
			Genres:      []string{"日常"},
			Website:     "https://www.bilibili.com/bangumi/play/ss100",
		}, metas.Metas[0])
	})

	t.Run("placeholders are dropped", func(t *testing.T) {
		rec := serve(t, &fakeCatalogService{}, "/catalog/series/bilibili-guochuang.json")
		require.Equal(t, http.StatusOK, rec.Code)

		var metas stremio.Metas
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metas))
		require.Len(t, metas.Metas, 3)
		assert.Equal(t, "bilibili:0", metas.Metas[0].ID)
		assert.Empty(t, metas.Metas[0].Poster)
		assert.Empty(t, metas.Metas[0].ReleaseInfo)
		assert.Empty(t, metas.Metas[0].Genres)
	})

	t.Run("link query is not part of the id", func(t *testing.T) {
		rec := serve(t, &fakeCatalogService{}, "/catalog/series/bilibili-guochuang.json")
		require.Equal(t, http.StatusOK, rec.Code)

		var metas stremio.Metas
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metas))
		require.Len(t, metas.Metas, 3)
		assert.Equal(t, "bilibili:ss200", metas.Metas[1].ID)
		assert.Equal(t, "bilibili:2", metas.Metas[2].ID)
	})

	t.Run("mixed with uid extra", func(t *testing.T) {
		svc := &fakeCatalogService{}
		rec := serve(t, svc, "/catalog/series/bilibili-mixed/uid=12345.json")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "12345", svc.mixedUserID)

		var metas stremio.Metas
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metas))
		assert.Len(t, metas.Metas, 2)
	})

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"mixed without uid", "/catalog/series/bilibili-mixed.json", http.StatusBadRequest},
		{"mixed with bad uid", "/catalog/series/bilibili-mixed/uid=abc.json", http.StatusBadRequest},
		{"movie type", "/catalog/movie/bilibili-popular.json", http.StatusBadRequest},
		{"unknown catalog", "/catalog/series/bilibili-unknown.json", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &fakeCatalogService{}, tt.target)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestAnimeHandler(t *testing.T) {
	t.Run("without uid", func(t *testing.T) {
		svc := &fakeCatalogService{}
		rec := serve(t, svc, "/api/anime")
		require.Equal(t, http.StatusOK, rec.Code)

		var items []bilibili.CatalogItem
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
		require.Len(t, items, 1)
		assert.Equal(t, "popular", items[0].Title)
		assert.Empty(t, svc.mixedUserID)
	})

	t.Run("with uid", func(t *testing.T) {
		svc := &fakeCatalogService{}
		rec := serve(t, svc, "/api/anime?uid=777")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "777", svc.mixedUserID)
	})

	t.Run("with invalid uid", func(t *testing.T) {
		rec := serve(t, &fakeCatalogService{}, "/api/anime?uid=-1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUserAnimeHandler(t *testing.T) {
	svc := &fakeCatalogService{}
	rec := serve(t, svc, "/api/anime/user/42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", svc.userID)
	assert.JSONEq(t, `[{"title":"user","status":"watching","rating":0,"cover":"","description":"","episodes":"","year":"","genre":null,"studio":"","link":"","progress":0,"totalEpisodes":0,"startDate":"","endDate":""}]`, rec.Body.String())

	rec = serve(t, &fakeCatalogService{}, "/api/anime/user/zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRankingHandlers(t *testing.T) {
	rec := serve(t, &fakeCatalogService{}, "/api/anime/popular")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"popular"`)

	rec = serve(t, &fakeCatalogService{}, "/api/anime/guochuang")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"guochuang"`)
}

func TestSeasonHandler(t *testing.T) {
	svc := &fakeCatalogService{}
	rec := serve(t, svc, "/api/season/33378")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "33378", svc.seasonID)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = serve(t, &fakeCatalogService{}, "/api/season/ss33378")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
