package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gpsclock/internal/fixlog"
)

type fixSummary struct {
	Fixes  int
	Span   time.Duration
	MaxGap time.Duration
	// Wraps counts midnight rollovers between consecutive entries.
	Wraps                          int
	MinLat, MaxLat, MinLon, MaxLon float64
	MinAlt, MaxAlt                 float64
}

func summarizeFixLog(entries []fixlog.Entry) fixSummary {
	s := fixSummary{
		MinLat: math.Inf(1), MaxLat: math.Inf(-1),
		MinLon: math.Inf(1), MaxLon: math.Inf(-1),
		MinAlt: math.Inf(1), MaxAlt: math.Inf(-1),
	}
	if len(entries) == 0 {
		return fixSummary{}
	}

	const day = 24 * time.Hour
	var elapsed time.Duration
	for i, e := range entries {
		s.Fixes++
		s.MinLat, s.MaxLat = math.Min(s.MinLat, e.Lat), math.Max(s.MaxLat, e.Lat)
		s.MinLon, s.MaxLon = math.Min(s.MinLon, e.Lon), math.Max(s.MaxLon, e.Lon)
		s.MinAlt, s.MaxAlt = math.Min(s.MinAlt, e.Alt), math.Max(s.MaxAlt, e.Alt)
		if i == 0 {
			continue
		}
		gap := e.TimeOfDay - entries[i-1].TimeOfDay
		if gap < 0 {
			gap += day
			s.Wraps++
		}
		elapsed += gap
		if gap > s.MaxGap {
			s.MaxGap = gap
		}
	}
	s.Span = elapsed
	return s
}

func (s fixSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fixes=%d span=%s max_gap=%s midnight_wraps=%d\n", s.Fixes, s.Span, s.MaxGap, s.Wraps)
	if s.Fixes > 0 {
		fmt.Fprintf(&b, "lat=[%.6f,%.6f] lon=[%.6f,%.6f] alt=[%.1f,%.1f]\n",
			s.MinLat, s.MaxLat, s.MinLon, s.MaxLon, s.MinAlt, s.MaxAlt)
	}
	return b.String()
}
