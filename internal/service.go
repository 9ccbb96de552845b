package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/centrifugal/centrifuge"
	"github.com/ogero/stremio-bilibili/internal/common"
	"github.com/ogero/stremio-bilibili/internal/loki"
	"github.com/ogero/stremio-bilibili/pkg/bilibili"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Source names where a catalog response came from.
type Source string

const (
	SourceUser    Source = "user"
	SourceRanking Source = "ranking"
	SourceNone    Source = "none"
)

const (
	followListPageSize = 50
	userAnimeLimit     = 50
	popularAnimeLimit  = 20
	guochuangLimit     = 10
	rankingDays        = 3
)

var followStatuses = []bilibili.Status{
	bilibili.StatusWatching,
	bilibili.StatusCompleted,
	bilibili.StatusPlanned,
}

// Stats represents usage counts over the last 24 hours and the source of the latest catalog response.
type Stats struct {
	// CatalogRequestsCount24 is the number of catalog requests served in the last 24 hours.
	CatalogRequestsCount24 int `json:"catalogRequestsCount24"`
	// FallbacksCount24 is the number of requests that fell back to the rankings in the last 24 hours.
	FallbacksCount24 int `json:"fallbacksCount24"`
	// SourceInstant is the source that served the latest catalog request.
	SourceInstant Source `json:"sourceInstant"`
}

// CatalogService builds anime catalogs out of Bilibili data. Upstream failures are logged
// and turned into empty results, callers never see an error.
type CatalogService interface {
	// Handler serves the stats websocket.
	http.Handler
	// UserAnime returns the user's watching, completed and planned lists merged, at most 50 items.
	// It is empty when the user is unknown or any of the three lists could not be fetched.
	UserAnime(ctx context.Context, userID string) []bilibili.CatalogItem
	// PopularAnime returns the top 20 of the 番剧 ranking.
	PopularAnime(ctx context.Context) []bilibili.CatalogItem
	// GuochuangAnime returns the top 10 of the 国创 ranking.
	GuochuangAnime(ctx context.Context) []bilibili.CatalogItem
	// MixedAnime returns UserAnime, or PopularAnime followed by GuochuangAnime when that is empty.
	MixedAnime(ctx context.Context, userID string) []bilibili.CatalogItem
	// Season returns the normalized detail of a season, or nothing.
	Season(ctx context.Context, seasonID string) []bilibili.CatalogItem
	// BroadcastStats updates and publishes statistical data to the websocket channel.
	BroadcastStats(statsUpdater func(stats *Stats) error) error
	// StartPollingStats fetches the 24h counts every interval and broadcasts them, until ctx is done.
	StartPollingStats(ctx context.Context, interval time.Duration)
}

type catalogService struct {
	statsWebsocketChannel string
	bilibili              bilibili.Bilibili
	loki                  loki.Loki

	node             *centrifuge.Node
	websocketHandler *centrifuge.WebsocketHandler
	statsMutex       *sync.Mutex
	stats            Stats
}

// NewCatalogService creates a CatalogService backed by the given Bilibili client and publishing stats on statsWebsocketChannel.
func NewCatalogService(statsWebsocketChannel string, bilibili bilibili.Bilibili, loki loki.Loki) (CatalogService, error) {
	svc := &catalogService{
		statsWebsocketChannel: statsWebsocketChannel,
		bilibili:              bilibili,
		loki:                  loki,

		statsMutex: &sync.Mutex{},
	}

	node, err := centrifuge.New(centrifuge.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to centrifuge.New: %w", err)
	}
	svc.node = node

	node.OnConnecting(func(ctx context.Context, e centrifuge.ConnectEvent) (centrifuge.ConnectReply, error) {
		return centrifuge.ConnectReply{}, nil
	})

	node.OnConnect(func(client *centrifuge.Client) {
		client.OnSubscribe(func(e centrifuge.SubscribeEvent, cb centrifuge.SubscribeCallback) {
			if e.Channel != statsWebsocketChannel {
				cb(centrifuge.SubscribeReply{}, centrifuge.ErrorPermissionDenied)
				return
			}

			cb(centrifuge.SubscribeReply{}, nil)

			go func() {
				err := svc.BroadcastStats(func(*Stats) error { return nil })
				if err != nil {
					common.Log.Warn("Failed to internal.CatalogService.BroadcastStats", "err", err)
				}
			}()
		})
	})

	if err := node.Run(); err != nil {
		return nil, fmt.Errorf("failed to centrifuge.Node.Run: %w", err)
	}

	svc.websocketHandler = centrifuge.NewWebsocketHandler(node, centrifuge.WebsocketConfig{
		ReadBufferSize:     1024,
		UseWriteBufferPool: true,
	})

	return svc, nil
}

// UserAnime returns the user's merged follow lists.
func (s *catalogService) UserAnime(ctx context.Context, userID string) []bilibili.CatalogItem {

	ctx, span := trace.SpanFromContext(ctx).TracerProvider().Tracer("").Start(ctx, "internal.CatalogService.UserAnime")
	defer span.End()

	items := s.userAnime(ctx, userID)
	s.served(ctx, lo.Ternary(len(items) > 0, SourceUser, SourceNone), items)

	return items
}

// PopularAnime returns the top of the 番剧 ranking.
func (s *catalogService) PopularAnime(ctx context.Context) []bilibili.CatalogItem {

	ctx, span := trace.SpanFromContext(ctx).TracerProvider().Tracer("").Start(ctx, "internal.CatalogService.PopularAnime")
	defer span.End()

	items := s.ranking(ctx, bilibili.SeasonTypeAnime, popularAnimeLimit)
	s.served(ctx, lo.Ternary(len(items) > 0, SourceRanking, SourceNone), items)

	return items
}

// GuochuangAnime returns the top of the 国创 ranking.
func (s *catalogService) GuochuangAnime(ctx context.Context) []bilibili.CatalogItem {

	ctx, span := trace.SpanFromContext(ctx).TracerProvider().Tracer("").Start(ctx, "internal.CatalogService.GuochuangAnime")
	defer span.End()

	items := s.ranking(ctx, bilibili.SeasonTypeGuochuang, guochuangLimit)
	s.served(ctx, lo.Ternary(len(items) > 0, SourceRanking, SourceNone), items)

	return items
}

// MixedAnime prefers the user's lists and falls back to the rankings.
func (s *catalogService) MixedAnime(ctx context.Context, userID string) []bilibili.CatalogItem {

	ctx, span := trace.SpanFromContext(ctx).TracerProvider().Tracer("").Start(ctx, "internal.CatalogService.MixedAnime")
	defer span.End()
	span.SetAttributes(attribute.String("bilibili.user_id", userID))

	if items := s.userAnime(ctx, userID); len(items) > 0 {
		s.served(ctx, SourceUser, items)
		return items
	}

	common.Log.InfoContext(ctx, loki.FallbackLine, "user_id", userID)

	var popular, guochuang []bilibili.CatalogItem
	var g errgroup.Group
	g.Go(func() error {
		popular = s.ranking(ctx, bilibili.SeasonTypeAnime, popularAnimeLimit)
		return nil
	})
	g.Go(func() error {
		guochuang = s.ranking(ctx, bilibili.SeasonTypeGuochuang, guochuangLimit)
		return nil
	})
	_ = g.Wait()

	items := append(make([]bilibili.CatalogItem, 0, len(popular)+len(guochuang)), popular...)
	items = append(items, guochuang...)
	common.Log.InfoContext(ctx, "Using rankings", "popular", len(popular), "guochuang", len(guochuang), "total", len(items))
	s.served(ctx, lo.Ternary(len(items) > 0, SourceRanking, SourceNone), items)

	return items
}

// Season returns the normalized detail of a season.
func (s *catalogService) Season(ctx context.Context, seasonID string) []bilibili.CatalogItem {

	ctx, span := trace.SpanFromContext(ctx).TracerProvider().Tracer("").Start(ctx, "internal.CatalogService.Season")
	defer span.End()
	span.SetAttributes(attribute.String("bilibili.season_id", seasonID))

	resp, ok := fetch(ctx, "GetSeason", func() (*bilibili.SeasonResponse, error) {
		return s.bilibili.GetSeason(ctx, seasonID)
	}).Get()
	if !ok {
		return []bilibili.CatalogItem{}
	}
	if resp.Code != 0 {
		common.Log.WarnContext(ctx, "Season not available", "season_id", seasonID, "code", resp.Code, "message", resp.Message)
		return []bilibili.CatalogItem{}
	}

	return bilibili.NormalizeSeason(resp)
}

// userAnime validates the user, then fetches the three follow lists in parallel.
// Personal data is all or nothing: one missing bucket discards the other two.
func (s *catalogService) userAnime(ctx context.Context, userID string) []bilibili.CatalogItem {

	userInfo, ok := fetch(ctx, "GetUserInfo", func() (*bilibili.UserInfoResponse, error) {
		return s.bilibili.GetUserInfo(ctx, userID)
	}).Get()
	if !ok {
		common.Log.WarnContext(ctx, "User not accessible", "user_id", userID)
		return []bilibili.CatalogItem{}
	}
	if userInfo.Code != 0 {
		common.Log.WarnContext(ctx, "User not found", "user_id", userID, "code", userInfo.Code, "message", userInfo.Message)
		return []bilibili.CatalogItem{}
	}
	if userInfo.Data != nil {
		common.Log.InfoContext(ctx, "Got user info", "user_id", userID, "name", userInfo.Data.Name)
	}

	buckets := make([]mo.Option[*bilibili.ListResponse], len(followStatuses))
	var g errgroup.Group
	for i, status := range followStatuses {
		g.Go(func() error {
			buckets[i] = fetch(ctx, "GetFollowList", func() (*bilibili.ListResponse, error) {
				return s.bilibili.GetFollowList(ctx, userID, status, followListPageSize, 1)
			})
			return nil
		})
	}
	_ = g.Wait()

	items := []bilibili.CatalogItem{}
	counts := make([]any, 0, 2*len(followStatuses))
	for i, bucket := range buckets {
		resp, ok := bucket.Get()
		if !ok {
			common.Log.WarnContext(ctx, "Missing follow list, discarding personal data", "user_id", userID, "status", followStatuses[i])
			return []bilibili.CatalogItem{}
		}
		bucketItems := bilibili.NormalizeFollowList(resp, followStatuses[i])
		items = append(items, bucketItems...)
		counts = append(counts, string(followStatuses[i]), len(bucketItems))
	}
	common.Log.InfoContext(ctx, "Got follow lists", counts...)

	return lo.Slice(items, 0, userAnimeLimit)
}

// ranking returns the first limit items of the seasonType ranking.
func (s *catalogService) ranking(ctx context.Context, seasonType bilibili.SeasonType, limit int) []bilibili.CatalogItem {

	resp, ok := fetch(ctx, "GetRankList", func() (*bilibili.ListResponse, error) {
		return s.bilibili.GetRankList(ctx, seasonType, rankingDays)
	}).Get()
	if !ok {
		return []bilibili.CatalogItem{}
	}

	return lo.Slice(bilibili.NormalizeRanking(resp), 0, limit)
}

// served records which source answered a catalog request.
func (s *catalogService) served(ctx context.Context, source Source, items []bilibili.CatalogItem) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("catalog.source", string(source)),
		attribute.Int("catalog.count", len(items)),
	)
	common.CatalogRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(source))))
	common.Log.InfoContext(ctx, loki.CatalogRequestLine, "source", source, "count", len(items))

	go func() {
		err := s.BroadcastStats(func(stats *Stats) error {
			stats.SourceInstant = source
			return nil
		})
		if err != nil {
			common.Log.WarnContext(ctx, "Failed to internal.CatalogService.BroadcastStats", "err", err)
		}
	}()
}

// fetch runs one upstream call, swallowing its error into an absent value.
func fetch[T any](ctx context.Context, endpoint string, call func() (*T, error)) mo.Option[*T] {
	resp, err := call()

	common.UpstreamRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("result", lo.Ternary(err == nil, "ok", "error")),
	))

	if err != nil {
		common.Log.WarnContext(ctx, "Failed to bilibili.Bilibili."+endpoint, "err", err)
		trace.SpanFromContext(ctx).RecordError(err)
		return mo.None[*T]()
	}

	return mo.Some(resp)
}

// BroadcastStats updates and publishes statistical data to the websocket channel.
func (s *catalogService) BroadcastStats(statsUpdater func(stats *Stats) error) error {
	stats, err := func() (Stats, error) {
		s.statsMutex.Lock()
		defer s.statsMutex.Unlock()
		if err := statsUpdater(&s.stats); err != nil {
			return Stats{}, err
		}
		return s.stats, nil
	}()
	if err != nil {
		return fmt.Errorf("failed to statsUpdater: %w", err)
	}

	b, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to json.Marshal: %w", err)
	}

	if _, err = s.node.Publish(s.statsWebsocketChannel, b); err != nil {
		return fmt.Errorf("failed to centrifuge.Node.Publish: %w", err)
	}

	return nil
}

// StartPollingStats fetches the 24h counts every interval and broadcasts them, until ctx is done.
func (s *catalogService) StartPollingStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.pollStats(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *catalogService) pollStats(ctx context.Context) {
	requests, err := s.loki.GetCatalogRequests24(ctx)
	if err != nil {
		common.Log.ErrorContext(ctx, "Failed to loki.Loki.GetCatalogRequests24", "err", err)
	}
	fallbacks, err := s.loki.GetFallbacks24(ctx)
	if err != nil {
		common.Log.ErrorContext(ctx, "Failed to loki.Loki.GetFallbacks24", "err", err)
	}

	err = s.BroadcastStats(func(stats *Stats) error {
		if requests != 0 {
			stats.CatalogRequestsCount24 = requests
		}
		if fallbacks != 0 {
			stats.FallbacksCount24 = fallbacks
		}
		return nil
	})
	if err != nil {
		common.Log.WarnContext(ctx, "Failed to internal.CatalogService.BroadcastStats", "err", err)
	}
}

// ServeHTTP handles incoming HTTP requests via a websocket handler
func (s *catalogService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := centrifuge.SetCredentials(r.Context(), &centrifuge.Credentials{})
	s.websocketHandler.ServeHTTP(w, r.WithContext(ctx))
}
