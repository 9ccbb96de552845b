package bilibili

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstInteger(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"全12话", 12},
		{"更新至第5话", 5},
		{"全１２话", 12},
		{"第3话 第4话", 3},
		{"即将开播", 0},
		{"", 0},
		{"99999999999999999999999", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, FirstInteger(tt.input))
		})
	}
}

func TestFlexInt_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected FlexInt
	}{
		{`12`, 12},
		{`12.0`, 12},
		{`-1`, -1},
		{`"看到第3话"`, 3},
		{`"尚未观看"`, 0},
		{`null`, 0},
		{`{"last_ep_index":"3"}`, 0},
		{`true`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var v struct {
				N FlexInt `json:"n"`
			}
			require.NoError(t, json.Unmarshal([]byte(`{"n":`+tt.input+`}`), &v))
			assert.Equal(t, tt.expected, v.N)
		})
	}
}

func TestFlexFloat_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected FlexFloat
	}{
		{`9.7`, 9.7},
		{`"8.5"`, 8.5},
		{`"8.5分"`, 8.5},
		{`{"score":9.1,"count":1200}`, 9.1},
		{`{"score":"7"}`, 7},
		{`{}`, 0},
		{`""`, 0},
		{`null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var v struct {
				F FlexFloat `json:"f"`
			}
			require.NoError(t, json.Unmarshal([]byte(`{"f":`+tt.input+`}`), &v))
			assert.Equal(t, tt.expected, v.F)
		})
	}
}

func TestStyles_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected Styles
	}{
		{`[{"id":1,"name":"日常"},{"id":2,"name":"治愈"}]`, Styles{"日常", "治愈"}},
		{`["奇幻","冒险"]`, Styles{"奇幻", "冒险"}},
		{`"日常/治愈"`, Styles{"日常", "治愈"}},
		{`"搞笑, 热血"`, Styles{"搞笑", "热血"}},
		{`[]`, Styles{}},
		{`null`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var v struct {
				S Styles `json:"s"`
			}
			require.NoError(t, json.Unmarshal([]byte(`{"s":`+tt.input+`}`), &v))
			assert.Equal(t, tt.expected, v.S)
		})
	}
}

func TestStyles_UnmarshalJSON_Invalid(t *testing.T) {
	var v struct {
		S Styles `json:"s"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"s":[1,2]}`), &v))
}

func TestStatus_FollowStatus(t *testing.T) {
	assert.Equal(t, 1, StatusWatching.FollowStatus())
	assert.Equal(t, 2, StatusCompleted.FollowStatus())
	assert.Equal(t, 3, StatusPlanned.FollowStatus())
	assert.Equal(t, 0, Status("dropped").FollowStatus())
}
