package internal

import (
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ogero/stremio-bilibili/internal/common"
	"github.com/ogero/stremio-bilibili/pkg/bilibili"
	"github.com/ogero/stremio-bilibili/pkg/stremio"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Stremio catalog ids.
const (
	CatalogPopular   = "bilibili-popular"
	CatalogGuochuang = "bilibili-guochuang"
	CatalogMixed     = "bilibili-mixed"
)

const metaIDPrefix = "bilibili:"

var manifest = stremio.Manifest{
	ID:          "com.bilibili.catalog.go",
	Version:     "0.1.0",
	Name:        "Bilibili 番剧",
	Description: "Bilibili anime rankings and personal follow lists",
	Types:       []string{"series"},
	Catalogs: []stremio.CatalogItem{
		{ID: CatalogPopular, Type: "series", Name: "Bilibili 热门番剧"},
		{ID: CatalogGuochuang, Type: "series", Name: "Bilibili 国创"},
		{ID: CatalogMixed, Type: "series", Name: "Bilibili 追番", Extra: []stremio.ExtraField{{Name: "uid", IsRequired: true}}},
	},
	IDPrefixes: []string{metaIDPrefix},
	Resources:  []string{"catalog"},
}

// App represents the main application structure that holds the catalog service.
type App struct {
	CatalogService CatalogService
}

// NewApp creates a new instance of the App struct.
func NewApp(catalogService CatalogService) (*App, error) {
	return &App{
		CatalogService: catalogService,
	}, nil
}

// Router registers the app handlers on a new chi router.
func (a *App) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/manifest.json", a.ManifestHandler)
	r.Get("/catalog/{type}/{id}", a.CatalogHandler)
	r.Get("/catalog/{type}/{id}/{extra}", a.CatalogHandler)
	r.Route("/api", func(r chi.Router) {
		r.Get("/anime", a.AnimeHandler)
		r.Get("/anime/user/{uid}", a.UserAnimeHandler)
		r.Get("/anime/popular", a.PopularAnimeHandler)
		r.Get("/anime/guochuang", a.GuochuangAnimeHandler)
		r.Get("/season/{id}", a.SeasonHandler)
	})
	r.Handle("/connection/websocket", http.HandlerFunc(a.WebsocketHandler))
	return r
}

// ManifestHandler serves the manifest for the addon.
func (a *App) ManifestHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	common.Log.DebugContext(ctx, "ManifestHandler")

	writeJSON(w, r, manifest)
}

/*
CatalogHandler serves the Stremio catalogs.

Both /catalog/{type}/{id}.json and /catalog/{type}/{id}/{extra}.json are accepted, extra being
query encoded. The mixed catalog requires a uid extra.
*/
func (a *App) CatalogHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)

	common.Log.DebugContext(ctx, "CatalogHandler")

	paramsType := chi.URLParam(r, "type")
	if err := common.ValidateCatalogType(paramsType); err != nil {
		common.Log.WarnContext(ctx, "Failed to common.ValidateCatalogType", "err", err)
		span.RecordError(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	paramsExtra := strings.TrimSuffix(chi.URLParam(r, "extra"), ".json")
	paramsID := chi.URLParam(r, "id")
	if paramsExtra == "" {
		paramsID = strings.TrimSuffix(paramsID, ".json")
	}
	span.SetAttributes(attribute.String("param.id", paramsID))

	extra, err := url.ParseQuery(paramsExtra)
	if err != nil {
		common.Log.WarnContext(ctx, "Failed to url.ParseQuery", "err", err)
		span.RecordError(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var items []bilibili.CatalogItem
	switch paramsID {
	case CatalogPopular:
		items = a.CatalogService.PopularAnime(ctx)
	case CatalogGuochuang:
		items = a.CatalogService.GuochuangAnime(ctx)
	case CatalogMixed:
		uid := extra.Get("uid")
		if err := common.ValidateUserID(uid); err != nil {
			common.Log.WarnContext(ctx, "Failed to common.ValidateUserID", "err", err)
			span.RecordError(err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		items = a.CatalogService.MixedAnime(ctx, uid)
	default:
		common.Log.WarnContext(ctx, "Unknown catalog", "id", paramsID)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	writeJSON(w, r, stremio.Metas{Metas: lo.Map(items, toMetaPreview)})
}

// AnimeHandler serves the mixed catalog when a uid query parameter is given, the popular one otherwise.
func (a *App) AnimeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)

	common.Log.DebugContext(ctx, "AnimeHandler")

	uid := r.URL.Query().Get("uid")
	if uid == "" {
		writeJSON(w, r, a.CatalogService.PopularAnime(ctx))
		return
	}

	if err := common.ValidateUserID(uid); err != nil {
		common.Log.WarnContext(ctx, "Failed to common.ValidateUserID", "err", err)
		span.RecordError(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	writeJSON(w, r, a.CatalogService.MixedAnime(ctx, uid))
}

// UserAnimeHandler serves a user's follow lists, without fallback.
func (a *App) UserAnimeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)

	common.Log.DebugContext(ctx, "UserAnimeHandler")

	uid := chi.URLParam(r, "uid")
	if err := common.ValidateUserID(uid); err != nil {
		common.Log.WarnContext(ctx, "Failed to common.ValidateUserID", "err", err)
		span.RecordError(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	writeJSON(w, r, a.CatalogService.UserAnime(ctx, uid))
}

// PopularAnimeHandler serves the 番剧 ranking.
func (a *App) PopularAnimeHandler(w http.ResponseWriter, r *http.Request) {
	common.Log.DebugContext(r.Context(), "PopularAnimeHandler")

	writeJSON(w, r, a.CatalogService.PopularAnime(r.Context()))
}

// GuochuangAnimeHandler serves the 国创 ranking.
func (a *App) GuochuangAnimeHandler(w http.ResponseWriter, r *http.Request) {
	common.Log.DebugContext(r.Context(), "GuochuangAnimeHandler")

	writeJSON(w, r, a.CatalogService.GuochuangAnime(r.Context()))
}

// SeasonHandler serves a single season.
func (a *App) SeasonHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)

	common.Log.DebugContext(ctx, "SeasonHandler")

	seasonID := chi.URLParam(r, "id")
	if err := common.ValidateSeasonID(seasonID); err != nil {
		common.Log.WarnContext(ctx, "Failed to common.ValidateSeasonID", "err", err)
		span.RecordError(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	writeJSON(w, r, a.CatalogService.Season(ctx, seasonID))
}

// WebsocketHandler handles WebSocket connections
func (a *App) WebsocketHandler(w http.ResponseWriter, r *http.Request) {
	common.Log.DebugContext(r.Context(), "WebsocketHandler")

	a.CatalogService.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		common.Log.ErrorContext(r.Context(), "Failed to write response", "err", err)
		trace.SpanFromContext(r.Context()).RecordError(err)
	}
}

// toMetaPreview maps an item to a Stremio meta. Items without a usable link are identified by position.
func toMetaPreview(item bilibili.CatalogItem, i int) stremio.MetaPreview {
	id := metaIDPrefix + strconv.Itoa(i)
	if u, err := url.Parse(item.Link); err == nil && strings.Trim(u.Path, "/") != "" {
		id = metaIDPrefix + path.Base(u.Path)
	}

	return stremio.MetaPreview{
		ID:          id,
		Type:        "series",
		Name:        item.Title,
		Poster:      lo.Ternary(item.Cover == bilibili.DefaultCover, "", item.Cover),
		Description: item.Description,
		ReleaseInfo: lo.Ternary(item.Year == bilibili.DefaultUnknown, "", item.Year),
		Genres:      lo.Without(item.Genre, bilibili.DefaultUnknown),
		Website:     item.Link,
	}
}
