package slackbot

import (
	"strings"
	"testing"
	"time"

	"incidentrag/internal/index"
	"incidentrag/internal/query"
)

func TestFormatTokenCount(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1k"},
		{1234, "1.2k"},
		{1950, "2k"},
		{15430, "15.4k"},
	}
	for _, tt := range tests {
		if got := formatTokenCount(tt.in); got != tt.want {
			t.Fatalf("formatTokenCount(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatAnswerTruncatesSources(t *testing.T) {
	resp := query.Response{
		Answer:      "answer",
		Type:        "default",
		K:           20,
		FellBack:    true,
		IncidentIDs: []string{"INC1", "INC2", "INC3", "INC4", "INC5", "INC6", "INC7"},
		Metrics:     query.Metrics{ResponseTime: 250 * time.Millisecond, TotalTokens: 10},
	}
	got := formatAnswer(resp)
	for _, want := range []string{"INC5 (+2 more)", "filters relaxed", "250ms", "tokens: 10"} {
		if !strings.Contains(got, want) {
			t.Fatalf("formatted answer %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "INC6") {
		t.Fatalf("expected INC6 to be hidden: %q", got)
	}
}

func TestFormatAnswerWithoutSources(t *testing.T) {
	got := formatAnswer(query.Response{Answer: "none", Type: "default", K: 20})
	if strings.Contains(got, "Sources") {
		t.Fatalf("unexpected sources line: %q", got)
	}
}

func TestFormatStatsEmptyAndTruncated(t *testing.T) {
	if got := formatStats(0, nil, nil); !strings.Contains(got, "empty") {
		t.Fatalf("unexpected empty stats %q", got)
	}
	var cats []index.CategoryCount
	for i := 0; i < 12; i++ {
		cats = append(cats, index.CategoryCount{Category: string(rune('A' + i)), Count: 12 - i})
	}
	got := formatStats(78, cats, nil)
	if !strings.HasSuffix(got, "- ... and 2 more") || strings.Contains(got, "Teams") {
		t.Fatalf("unexpected stats %q", got)
	}
}
