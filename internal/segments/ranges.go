package segments

import "sort"

// SkipRange is a span of playback to jump over. Overlapping database
// segments are merged into one range carrying every source UUID, so a
// single seek can clear them all.
type SkipRange struct {
	Start      float64
	End        float64
	UUIDs      []string
	Categories []string
}

// Duration returns the range length in seconds.
func (r SkipRange) Duration() float64 {
	return r.End - r.Start
}

// CoveredBy reports whether every UUID in the range is in the given set.
func (r SkipRange) CoveredBy(completed map[string]struct{}) bool {
	if len(r.UUIDs) == 0 {
		return false
	}
	for _, uuid := range r.UUIDs {
		if _, ok := completed[uuid]; !ok {
			return false
		}
	}
	return true
}

type rawSegment struct {
	start    float64
	end      float64
	uuid     string
	category string
}

// mergeSegments sorts raw segments by start and coalesces overlapping or
// touching spans into ranges.
func mergeSegments(raw []rawSegment) []SkipRange {
	if len(raw) == 0 {
		return nil
	}
	sort.Slice(raw, func(i, j int) bool {
		if raw[i].start != raw[j].start {
			return raw[i].start < raw[j].start
		}
		return raw[i].end < raw[j].end
	})

	var ranges []SkipRange
	current := SkipRange{
		Start:      raw[0].start,
		End:        raw[0].end,
		UUIDs:      []string{raw[0].uuid},
		Categories: []string{raw[0].category},
	}
	for _, segment := range raw[1:] {
		if segment.start <= current.End {
			if segment.end > current.End {
				current.End = segment.end
			}
			current.UUIDs = appendUnique(current.UUIDs, segment.uuid)
			current.Categories = appendUnique(current.Categories, segment.category)
			continue
		}
		ranges = append(ranges, current)
		current = SkipRange{
			Start:      segment.start,
			End:        segment.end,
			UUIDs:      []string{segment.uuid},
			Categories: []string{segment.category},
		}
	}
	return append(ranges, current)
}

func appendUnique(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}
