package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ogero/stremio-bilibili/pkg/transport"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBaseURL is the public Bilibili API host.
const DefaultBaseURL = "https://api.bilibili.com"

const (
	publicUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptLanguage   = "zh-CN,zh;q=0.9,en;q=0.8"
	siteURL          = "https://www.bilibili.com"
	spaceURL         = "https://space.bilibili.com/"

	maxBodySize      = 4 * 1024 * 1024
	maxErrorBodySize = 512
)

// StatusError is returned when Bilibili answers with a non-2xx status code.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("invalid status code: %d - %s", e.StatusCode, e.Body)
}

// Bilibili defines the methods to interact with the Bilibili API.
type Bilibili interface {
	// GetRankList fetches the ranking of seasonType over the last day days.
	GetRankList(ctx context.Context, seasonType SeasonType, day int) (*ListResponse, error)
	// GetSeason fetches the detail of a season.
	GetSeason(ctx context.Context, seasonID string) (*SeasonResponse, error)
	// GetFollowList fetches one page of a user's follow list for status.
	// The request cookie is built from userID only, no session is attached.
	GetFollowList(ctx context.Context, userID string, status Status, pageSize, pageNum int) (*ListResponse, error)
	// GetUserInfo fetches a user's public profile.
	GetUserInfo(ctx context.Context, userID string) (*UserInfoResponse, error)
}

type bilibili struct {
	httpClient *http.Client
	baseURL    string
}

// NewBilibili creates a new Bilibili client talking to baseURL.
func NewBilibili(baseURL string) Bilibili {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 100
	t.MaxConnsPerHost = 100
	t.MaxIdleConnsPerHost = 100

	rt := transport.NewDefaultHeadersRoundTripper(otelhttp.NewTransport(t),
		transport.WithUserAgent(publicUserAgent),
		transport.WithReferer(siteURL+"/"),
		transport.WithAcceptLanguage(acceptLanguage),
	)

	return &bilibili{
		httpClient: &http.Client{
			Transport: rt,
		},
		baseURL: baseURL,
	}
}

// GetRankList fetches the ranking of seasonType over the last day days.
func (b *bilibili) GetRankList(ctx context.Context, seasonType SeasonType, day int) (*ListResponse, error) {

	ctx, span := trace.SpanFromContext(ctx).TracerProvider().Tracer("").Start(ctx, "bilibili.Bilibili.GetRankList")
	defer span.End()
	span.SetAttributes(attribute.Int("bilibili.season_type", int(seasonType)), attribute.Int("bilibili.day", day))

	query := url.Values{}
	query.Set("season_type", strconv.Itoa(int(seasonType)))
	query.Set("day", strconv.Itoa(day))

	resp := &ListResponse{}
	if err := b.get(ctx, "/pgc/web/rank/list", query, nil, resp); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch rank list: %w", err)
	}

	return resp, nil
}

// GetSeason fetches the detail of a season.
func (b *bilibili) GetSeason(ctx context.Context, seasonID string) (*SeasonResponse, error) {

	ctx, span := trace.SpanFromContext(ctx).TracerProvider().Tracer("").Start(ctx, "bilibili.Bilibili.GetSeason")
	defer span.End()
	span.SetAttributes(attribute.String("bilibili.season_id", seasonID))

	query := url.Values{}
	query.Set("season_id", seasonID)

	resp := &SeasonResponse{}
	if err := b.get(ctx, "/pgc/view/web/season", query, nil, resp); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch season %s: %w", seasonID, err)
	}

	return resp, nil
}

// GetFollowList fetches one page of a user's follow list for status.
func (b *bilibili) GetFollowList(ctx context.Context, userID string, status Status, pageSize, pageNum int) (*ListResponse, error) {

	ctx, span := trace.SpanFromContext(ctx).TracerProvider().Tracer("").Start(ctx, "bilibili.Bilibili.GetFollowList")
	defer span.End()
	span.SetAttributes(attribute.String("bilibili.user_id", userID), attribute.String("bilibili.status", string(status)))

	followStatus := status.FollowStatus()
	if followStatus == 0 {
		return nil, fmt.Errorf("unknown follow status %q", status)
	}

	query := url.Values{}
	query.Set("type", "1")
	query.Set("follow_status", strconv.Itoa(followStatus))
	query.Set("ps", strconv.Itoa(pageSize))
	query.Set("pn", strconv.Itoa(pageNum))

	header := http.Header{}
	header.Set("User-Agent", browserUserAgent)
	header.Set("Referer", siteURL+"/")
	header.Set("Origin", siteURL)
	header.Set("Accept", "application/json, text/plain, */*")
	header.Set("Cookie", fmt.Sprintf("DedeUserID=%s; buvid3=; SESSDATA=;", userID))

	resp := &ListResponse{}
	if err := b.get(ctx, "/pgc/web/follow/list", query, header, resp); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch follow list: %w", err)
	}

	return resp, nil
}

// GetUserInfo fetches a user's public profile.
func (b *bilibili) GetUserInfo(ctx context.Context, userID string) (*UserInfoResponse, error) {

	ctx, span := trace.SpanFromContext(ctx).TracerProvider().Tracer("").Start(ctx, "bilibili.Bilibili.GetUserInfo")
	defer span.End()
	span.SetAttributes(attribute.String("bilibili.user_id", userID))

	query := url.Values{}
	query.Set("mid", userID)

	header := http.Header{}
	header.Set("Referer", spaceURL)

	resp := &UserInfoResponse{}
	if err := b.get(ctx, "/x/space/acc/info", query, header, resp); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	return resp, nil
}

// get performs a GET on endpoint and decodes the JSON body into v.
func (b *bilibili) get(ctx context.Context, endpoint string, query url.Values, header http.Header, v any) error {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to http.NewRequestWithContext: %w", err)
	}
	for key, values := range header {
		req.Header[key] = values
	}

	res, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to http.Client.Do: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodySize))
		return &StatusError{StatusCode: res.StatusCode, Body: string(body)}
	}

	err = json.NewDecoder(io.LimitReader(res.Body, maxBodySize)).Decode(v)
	if err != nil {
		return fmt.Errorf("failed to json.NewDecoder.Decode: %w", err)
	}

	return nil
}
