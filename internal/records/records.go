package records

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rpsarena/client/internal/cache"
	"github.com/rpsarena/client/internal/game"
	"github.com/rpsarena/client/internal/transport"
)

const cacheKey = "records"

// Source is where records come from.
type Source interface {
	Records(ctx context.Context) (*transport.Records, error)
}

// Book serves records from a short-lived cache.
type Book struct {
	source Source
	cache  *cache.Cache[*transport.Records]
	ttl    time.Duration
}

func NewBook(source Source, ttl time.Duration) *Book {
	return &Book{
		source: source,
		cache:  cache.New[*transport.Records](time.Minute),
		ttl:    ttl,
	}
}

func (b *Book) Fetch(ctx context.Context) (*transport.Records, error) {
	if recs, ok := b.cache.Get(cacheKey); ok {
		return recs, nil
	}
	recs, err := b.source.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	if b.ttl > 0 {
		b.cache.Set(cacheKey, recs, b.ttl)
	}
	return recs, nil
}

// Invalidate forgets cached records, e.g. after a match finished.
func (b *Book) Invalidate() {
	b.cache.Delete(cacheKey)
}

func (b *Book) Close() error {
	b.cache.Close()
	return nil
}

// Format renders the records screen.
func Format(recs *transport.Records) string {
	var sb strings.Builder
	section := func(title string, list []transport.Record) {
		fmt.Fprintf(&sb, "%s\n", title)
		if len(list) == 0 {
			sb.WriteString("  No records yet.\n")
			return
		}
		for _, r := range list {
			fmt.Fprintf(&sb, "  %s  winner: %s  (%s)\n", r.Match, r.Winner, formatDate(r.Date))
		}
	}
	section("🎮 Player vs Player", recs.PvP)
	section("🤖 Player vs CPU", recs.PvCPU)
	section("🏆 Tournament winners", recs.Tournament)
	return sb.String()
}

func formatDate(raw string) string {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02 15:04")
		}
	}
	return raw
}

// Stats summarises a player's move history.
type Stats struct {
	Total     int
	Counts    map[game.Choice]int
	Favourite game.Choice
}

func Summarize(history []game.Choice) Stats {
	s := Stats{Counts: make(map[game.Choice]int, len(game.Choices))}
	for _, c := range history {
		if c.Valid() {
			s.Counts[c]++
			s.Total++
		}
	}
	best := 0
	for _, c := range game.Choices {
		if n := s.Counts[c]; n > best {
			best, s.Favourite = n, c
		}
	}
	return s
}

func (s Stats) Percent(c game.Choice) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Counts[c]) * 100 / float64(s.Total)
}

func (s Stats) String() string {
	if s.Total == 0 {
		return "No moves played yet."
	}
	choices := append([]game.Choice(nil), game.Choices...)
	sort.SliceStable(choices, func(i, j int) bool { return s.Counts[choices[i]] > s.Counts[choices[j]] })

	var sb strings.Builder
	fmt.Fprintf(&sb, "Moves played: %d\n", s.Total)
	for _, c := range choices {
		fmt.Fprintf(&sb, "  %-8s %3d  %5.1f%%\n", c, s.Counts[c], s.Percent(c))
	}
	fmt.Fprintf(&sb, "Favourite move: %s\n", s.Favourite)
	return sb.String()
}
