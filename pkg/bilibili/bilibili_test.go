package bilibili

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *bilibili {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &bilibili{
		httpClient: &http.Client{},
		baseURL:    server.URL,
	}
}

func TestGetRankList(t *testing.T) {
	b := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pgc/web/rank/list" || r.Method != http.MethodGet {
			t.Fatalf("unexpected request %v", r)
		}
		assert.Equal(t, "2", r.URL.Query().Get("season_type"))
		assert.Equal(t, "3", r.URL.Query().Get("day"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"result":{"list":[{"title":"A","season_id":1},{"title":"B","season_id":2}]}}`))
	})

	resp, err := b.GetRankList(context.Background(), SeasonTypeGuochuang, 3)
	require.NoError(t, err)

	records := resp.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "A", records[0].Title)
	assert.Equal(t, FlexInt(2), records[1].SeasonID)
}

func TestGetRankList_BadlyTypedRecord(t *testing.T) {
	b := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"result":{"list":[{"title":"A","season_id":1},{"title":"B","season_id":"2"}]}}`))
	})

	resp, err := b.GetRankList(context.Background(), SeasonTypeAnime, 3)
	require.NoError(t, err)

	records := resp.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "A", records[0].Title)
	assert.Equal(t, FlexInt(1), records[0].SeasonID)
	assert.Equal(t, "B", records[1].Title)
	assert.Equal(t, FlexInt(2), records[1].SeasonID)
}

func TestGetSeason(t *testing.T) {
	b := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pgc/view/web/season" {
			t.Fatalf("unexpected request %v", r)
		}
		assert.Equal(t, "42", r.URL.Query().Get("season_id"))

		_, _ = w.Write([]byte(`{"code":0,"result":{"title":"S","styles":["奇幻","冒险"],"episodes":[{},{},{}]}}`))
	})

	resp, err := b.GetSeason(context.Background(), "42")
	require.NoError(t, err)
	require.NotNil(t, resp.Result)

	assert.Equal(t, "S", resp.Result.Title)
	assert.Equal(t, Styles{"奇幻", "冒险"}, resp.Result.Styles)
	assert.Len(t, resp.Result.Episodes, 3)
}

func TestGetFollowList(t *testing.T) {
	b := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pgc/web/follow/list" {
			t.Fatalf("unexpected request %v", r)
		}
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("type"))
		assert.Equal(t, "2", q.Get("follow_status"))
		assert.Equal(t, "50", q.Get("ps"))
		assert.Equal(t, "1", q.Get("pn"))

		assert.Equal(t, "DedeUserID=12345; buvid3=; SESSDATA=;", r.Header.Get("Cookie"))
		assert.Equal(t, browserUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "https://www.bilibili.com", r.Header.Get("Origin"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"result": map[string]any{
				"list":  []map[string]any{{"title": "F", "progress": "看到第3话"}},
				"total": 1,
			},
		})
	})

	resp, err := b.GetFollowList(context.Background(), "12345", StatusCompleted, 50, 1)
	require.NoError(t, err)

	records := resp.Records()
	require.Len(t, records, 1)
	assert.Equal(t, FlexInt(3), records[0].Progress)
	assert.Equal(t, 1, resp.Result.Total)
}

func TestGetFollowList_UnknownStatus(t *testing.T) {
	b := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %v", r)
	})

	_, err := b.GetFollowList(context.Background(), "12345", Status("dropped"), 50, 1)
	assert.Error(t, err)
}

func TestGetUserInfo(t *testing.T) {
	b := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/x/space/acc/info" {
			t.Fatalf("unexpected request %v", r)
		}
		assert.Equal(t, "12345", r.URL.Query().Get("mid"))
		assert.Equal(t, "https://space.bilibili.com/", r.Header.Get("Referer"))

		_, _ = w.Write([]byte(`{"code":0,"data":{"mid":12345,"name":"someone"}}`))
	})

	resp, err := b.GetUserInfo(context.Background(), "12345")
	require.NoError(t, err)
	require.NotNil(t, resp.Data)

	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "someone", resp.Data.Name)
}

func TestGet_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "non 2xx status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusPreconditionFailed)
				_, _ = w.Write([]byte("rejected"))
			},
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, http.StatusPreconditionFailed, statusErr.StatusCode)
				assert.Equal(t, "rejected", statusErr.Body)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "failed to json.NewDecoder.Decode")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestClient(t, tt.handler)
			_, err := b.GetRankList(context.Background(), SeasonTypeAnime, 3)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestNewBilibili_DefaultHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, publicUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "https://www.bilibili.com/", r.Header.Get("Referer"))
		assert.Equal(t, acceptLanguage, r.Header.Get("Accept-Language"))
		_, _ = w.Write([]byte(`{"code":0,"result":{"list":[]}}`))
	}))
	defer server.Close()

	resp, err := NewBilibili(server.URL).GetRankList(context.Background(), SeasonTypeAnime, 7)
	require.NoError(t, err)
	assert.NotNil(t, resp.Records())
	assert.Empty(t, resp.Records())
}
