package bilibili

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/samber/lo"
)

// Placeholders used when upstream omits a field.
const (
	DefaultTitle   = "未知标题"
	DefaultCover   = "/assets/anime/default.webp"
	DefaultUnknown = "未知"
)

const seasonPlayURL = "https://www.bilibili.com/bangumi/play/ss%d"

var (
	pubDateLayouts = []string{
		time.DateOnly,
		time.DateTime,
		time.RFC3339,
		"2006/01/02",
		"2006-01",
	}
	yearPrefixRE = regexp.MustCompile(`^\d{4}`)
)

// Normalize maps records into CatalogItems carrying status, in input order.
func Normalize(records []Record, status Status) []CatalogItem {
	return lo.Map(records, func(r Record, _ int) CatalogItem {
		return NormalizeRecord(r, status)
	})
}

// NormalizeRanking normalizes a ranking list. Rankings carry no personal data,
// so every item is planned with zero progress and rating.
func NormalizeRanking(resp *ListResponse) []CatalogItem {
	return lo.Map(resp.Records(), func(r Record, _ int) CatalogItem {
		item := NormalizeRecord(r, StatusPlanned)
		item.Progress = 0
		item.Rating = 0
		return item
	})
}

// NormalizeFollowList normalizes one follow list bucket.
func NormalizeFollowList(resp *ListResponse, status Status) []CatalogItem {
	return Normalize(resp.Records(), status)
}

// NormalizeSeason normalizes a season detail response into at most one item.
func NormalizeSeason(resp *SeasonResponse) []CatalogItem {
	if resp == nil || resp.Result == nil {
		return []CatalogItem{}
	}

	item := NormalizeRecord(resp.Result.Record, StatusPlanned)
	if item.TotalEpisodes == 0 && len(resp.Result.Episodes) > 0 {
		item.TotalEpisodes = len(resp.Result.Episodes)
		item.Episodes = episodesSummary(item.TotalEpisodes)
	}

	return []CatalogItem{item}
}

// NormalizeRecord maps a single record. For every field the first non-empty
// alternate wins, otherwise the placeholder is used.
func NormalizeRecord(r Record, status Status) CatalogItem {
	pubDate := r.PubDate
	if pubDate == "" && r.Publish != nil {
		pubDate = r.Publish.PubTime
	}

	var showText, indexShow string
	if r.NewEp != nil {
		showText, indexShow = r.NewEp.ShowText, r.NewEp.IndexShow
	}

	var areaName string
	if len(r.Areas) > 0 {
		areaName = r.Areas[0].Name
	}

	var seasonURL string
	if r.SeasonID > 0 {
		seasonURL = fmt.Sprintf(seasonPlayURL, r.SeasonID)
	}

	genre := []string(r.Styles)
	if genre == nil {
		genre = []string{DefaultUnknown}
	}

	totalEpisodes := firstPositive(int(r.TotalEpisode), int(r.TotalCount), FirstInteger(indexShow))

	return CatalogItem{
		Title:         lo.CoalesceOrEmpty(r.Title, r.Name, DefaultTitle),
		Status:        status,
		Rating:        float64(r.Rating),
		Cover:         lo.CoalesceOrEmpty(r.Cover, r.Pic, DefaultCover),
		Description:   lo.CoalesceOrEmpty(r.Desc, r.Evaluate),
		Episodes:      episodesSummary(totalEpisodes),
		Year:          pubYear(pubDate),
		Genre:         genre,
		Studio:        lo.CoalesceOrEmpty(showText, areaName, DefaultUnknown),
		Link:          lo.CoalesceOrEmpty(r.URL, r.Link, seasonURL),
		Progress:      int(r.Progress),
		TotalEpisodes: totalEpisodes,
		StartDate:     pubDate,
		EndDate:       pubDate,
	}
}

func episodesSummary(n int) string {
	return strconv.Itoa(n) + " episodes"
}

// pubYear returns the year of a publication date, or DefaultUnknown.
func pubYear(pubDate string) string {
	if pubDate == "" {
		return DefaultUnknown
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, pubDate); err == nil {
			return strconv.Itoa(t.Year())
		}
	}
	if y := yearPrefixRE.FindString(pubDate); y != "" {
		return y
	}
	return DefaultUnknown
}

func firstPositive(values ...int) int {
	v, _ := lo.Find(values, func(n int) bool { return n > 0 })
	return v
}
