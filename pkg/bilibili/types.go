package bilibili

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/width"
)

// Status is the watch status of a CatalogItem.
type Status string

const (
	StatusWatching  Status = "watching"
	StatusCompleted Status = "completed"
	StatusPlanned   Status = "planned"
)

// FollowStatus returns the follow_status code Bilibili uses for s, or 0 if s is unknown.
func (s Status) FollowStatus() int {
	switch s {
	case StatusWatching:
		return 1
	case StatusCompleted:
		return 2
	case StatusPlanned:
		return 3
	default:
		return 0
	}
}

// SeasonType selects the ranking category.
type SeasonType int

const (
	// SeasonTypeAnime is the 番剧 ranking.
	SeasonTypeAnime SeasonType = 1
	// SeasonTypeGuochuang is the 国创 ranking.
	SeasonTypeGuochuang SeasonType = 2
)

// CatalogItem is the normalized anime record.
type CatalogItem struct {
	Title         string   `json:"title"`
	Status        Status   `json:"status"`
	Rating        float64  `json:"rating"`
	Cover         string   `json:"cover"`
	Description   string   `json:"description"`
	Episodes      string   `json:"episodes"`
	Year          string   `json:"year"`
	Genre         []string `json:"genre"`
	Studio        string   `json:"studio"`
	Link          string   `json:"link"`
	Progress      int      `json:"progress"`
	TotalEpisodes int      `json:"totalEpisodes"`
	StartDate     string   `json:"startDate"`
	EndDate       string   `json:"endDate"`
}

// Record is the season shape shared by the ranking, follow list and season detail endpoints.
// Each endpoint fills a different subset of fields.
type Record struct {
	Title    string `json:"title"`
	Name     string `json:"name"`
	Cover    string `json:"cover"`
	Pic      string `json:"pic"`
	Desc     string `json:"desc"`
	Evaluate string `json:"evaluate"`
	PubDate  string `json:"pub_date"`
	Publish  *struct {
		PubTime string `json:"pub_time"`
	} `json:"publish"`
	Styles Styles `json:"styles"`
	NewEp  *struct {
		ShowText  string `json:"show_text"`
		IndexShow string `json:"index_show"`
	} `json:"new_ep"`
	Areas []struct {
		Name string `json:"name"`
	} `json:"areas"`
	URL          string    `json:"url"`
	Link         string    `json:"link"`
	SeasonID     FlexInt   `json:"season_id"`
	TotalEpisode FlexInt   `json:"total_episode"`
	TotalCount   FlexInt   `json:"total_count"`
	Progress     FlexInt   `json:"progress"`
	Rating       FlexFloat `json:"rating"`
}

// UnmarshalJSON decodes r field by field when a strict decode fails, so one badly typed
// field only loses that field. A record that is not an object decodes to the zero Record.
func (r *Record) UnmarshalJSON(b []byte) error {
	type plain Record

	var p plain
	if err := json.Unmarshal(b, &p); err == nil {
		*r = Record(p)
		return nil
	}

	p = plain{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		*r = Record{}
		return nil
	}
	for key, value := range fields {
		field, err := json.Marshal(map[string]json.RawMessage{key: value})
		if err != nil {
			continue
		}
		var f plain
		if err := json.Unmarshal(field, &f); err != nil {
			continue
		}
		_ = json.Unmarshal(field, &p)
	}
	*r = Record(p)

	return nil
}

// ListPayload is the paged list envelope.
type ListPayload struct {
	List  []Record `json:"list"`
	Total int      `json:"total"`
}

// ListResponse is returned by the ranking and follow list endpoints.
// Older endpoints wrap the payload in result, newer ones in data.
type ListResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Result  *ListPayload `json:"result"`
	Data    *ListPayload `json:"data"`
}

// Records returns the listed records, or nil when the response carries no list.
func (r *ListResponse) Records() []Record {
	if r == nil {
		return nil
	}
	if r.Result != nil && r.Result.List != nil {
		return r.Result.List
	}
	if r.Data != nil {
		return r.Data.List
	}
	return nil
}

// SeasonResult is the season detail payload.
type SeasonResult struct {
	Record
	Episodes []json.RawMessage `json:"episodes"`
}

// UnmarshalJSON keeps the season record tolerant like Record and reads the episodes alongside.
func (s *SeasonResult) UnmarshalJSON(b []byte) error {
	if err := s.Record.UnmarshalJSON(b); err != nil {
		return err
	}

	var episodes struct {
		Episodes []json.RawMessage `json:"episodes"`
	}
	if err := json.Unmarshal(b, &episodes); err != nil {
		s.Episodes = nil
		return nil
	}
	s.Episodes = episodes.Episodes

	return nil
}

// SeasonResponse is returned by the season detail endpoint.
type SeasonResponse struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Result  *SeasonResult `json:"result"`
}

// UserInfoResponse is returned by the public profile endpoint.
type UserInfoResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		Mid  int64  `json:"mid"`
		Name string `json:"name"`
		Face string `json:"face"`
		Sign string `json:"sign"`
	} `json:"data"`
}

var (
	jsonNull        = []byte("null")
	firstIntegerRE  = regexp.MustCompile(`\d+`)
	firstDecimalRE  = regexp.MustCompile(`\d+(\.\d+)?`)
	styleSeparators = "/,、·|"
)

// FirstInteger returns the first run of digits in s, full-width digits included, or 0 if there is none.
func FirstInteger(s string) int {
	m := firstIntegerRE.FindString(width.Fold.String(s))
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// FlexInt decodes a JSON number, or the first integer found in a JSON string ("看到第3话" → 3).
// Any other JSON value leaves it at 0.
type FlexInt int

func (n *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, jsonNull) {
		return nil
	}

	switch {
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("failed to json.Unmarshal string: %w", err)
		}
		*n = FlexInt(FirstInteger(s))
	case b[0] == '-' || ('0' <= b[0] && b[0] <= '9'):
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("failed to json.Unmarshal number: %w", err)
		}
		*n = FlexInt(f)
	}

	return nil
}

// FlexFloat decodes a JSON number, a numeric JSON string, or an object holding a score ({"score": 9.7}).
// Any other JSON value leaves it at 0.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, jsonNull) {
		return nil
	}

	switch {
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("failed to json.Unmarshal string: %w", err)
		}
		m := firstDecimalRE.FindString(width.Fold.String(s))
		if m == "" {
			return nil
		}
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return nil
		}
		*f = FlexFloat(v)
	case b[0] == '{':
		var obj struct {
			Score FlexFloat `json:"score"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return fmt.Errorf("failed to json.Unmarshal score: %w", err)
		}
		*f = obj.Score
	case b[0] == '-' || ('0' <= b[0] && b[0] <= '9'):
		var v float64
		if err := json.Unmarshal(b, &v); err != nil {
			return fmt.Errorf("failed to json.Unmarshal number: %w", err)
		}
		*f = FlexFloat(v)
	}

	return nil
}

// Styles holds genre names. Upstream sends either a list of {"name": ...} objects,
// a list of strings, or a single separated string ("日常/治愈").
// A missing or null value decodes to nil, an empty list to an empty non-nil slice.
type Styles []string

func (s *Styles) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, jsonNull) {
		return nil
	}

	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return fmt.Errorf("failed to json.Unmarshal styles string: %w", err)
		}
		names := strings.FieldsFunc(str, func(r rune) bool {
			return strings.ContainsRune(styleSeparators, r)
		})
		*s = lo.Compact(lo.Map(names, func(name string, _ int) string {
			return strings.TrimSpace(name)
		}))
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("failed to json.Unmarshal styles: %w", err)
	}

	names := make(Styles, 0, len(raw))
	for _, r := range raw {
		var name string
		if err := json.Unmarshal(r, &name); err == nil {
			names = append(names, name)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(r, &obj); err != nil {
			return fmt.Errorf("failed to json.Unmarshal style: %w", err)
		}
		names = append(names, obj.Name)
	}
	*s = names

	return nil
}
