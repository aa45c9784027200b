// Package logstats computes visit statistics from raw access-log text.
//
// Everything here is a pure function over the text: no I/O, no clock.
// IP extraction is deliberately shape-based — the first token of four
// dot-separated 1–3 digit groups on each line is taken as the client
// IP, with no range validation. A "999.999.999.999" in a User-Agent
// would count; that permissiveness is part of the contract, because
// the log lines put the real IP first anyway.
package logstats

import (
	"regexp"
	"sort"
	"strings"
)

var ipPattern = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)

// Stats summarizes one log file.
type Stats struct {
	// Total is the number of non-empty lines, whether or not an IP
	// token was found on them.
	Total int

	// Counts maps each IP token to its occurrence count.
	Counts map[string]int

	// firstSeen preserves the order IPs were first observed in, for
	// stable ranking.
	firstSeen []string
}

// Unique returns the number of distinct IP tokens observed.
func (s Stats) Unique() int { return len(s.Counts) }

// IPCount is one row of the ranked view.
type IPCount struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}

// Analyze parses raw log text into visit statistics. Lines with no
// IP-shaped token count toward Total but toward no IP. Deterministic:
// the same input always yields the same Stats.
func Analyze(text string) Stats {
	s := Stats{Counts: make(map[string]int)}
	for _, line := range splitLines(text) {
		s.Total++
		ip := ipPattern.FindString(line)
		if ip == "" {
			continue
		}
		if _, seen := s.Counts[ip]; !seen {
			s.firstSeen = append(s.firstSeen, ip)
		}
		s.Counts[ip]++
	}
	return s
}

// Top returns IPs ranked by descending count. Ties keep first-seen
// order — the natural behavior of a count map iterated in insertion
// order, preserved here with a stable sort.
func (s Stats) Top() []IPCount {
	ranked := make([]IPCount, 0, len(s.firstSeen))
	for _, ip := range s.firstSeen {
		ranked = append(ranked, IPCount{IP: ip, Count: s.Counts[ip]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	return ranked
}

// Match is one retained line from Filter, with the byte span of the
// first occurrence of the needle so the viewer can highlight it.
type Match struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Filter retains the lines of text containing substr — a literal,
// case-sensitive match. An empty substr retains every non-empty line
// with a zero-width span.
func Filter(text, substr string) []Match {
	var matches []Match
	for _, line := range splitLines(text) {
		idx := strings.Index(line, substr)
		if idx < 0 {
			continue
		}
		matches = append(matches, Match{Text: line, Start: idx, End: idx + len(substr)})
	}
	return matches
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
