// Package domain holds the catalog types shared across the sync pipeline.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Season is one quarter of the anime broadcast year.
type Season string

const (
	SeasonWinter Season = "winter"
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonFall   Season = "fall"
)

// ParseSeason validates a season name. Matching is case-insensitive.
func ParseSeason(s string) (Season, error) {
	switch Season(strings.ToLower(strings.TrimSpace(s))) {
	case SeasonWinter:
		return SeasonWinter, nil
	case SeasonSpring:
		return SeasonSpring, nil
	case SeasonSummer:
		return SeasonSummer, nil
	case SeasonFall:
		return SeasonFall, nil
	default:
		return "", fmt.Errorf("invalid season %q (must be winter, spring, summer, or fall)", s)
	}
}

// SeasonOf maps a point in time to its broadcast season.
func SeasonOf(t time.Time) Season {
	switch t.Month() {
	case time.January, time.February, time.March:
		return SeasonWinter
	case time.April, time.May, time.June:
		return SeasonSpring
	case time.July, time.August, time.September:
		return SeasonSummer
	default:
		return SeasonFall
	}
}

// CurrentSeason returns the season and year of the current broadcast quarter.
func CurrentSeason() (Season, int) {
	now := time.Now()
	return SeasonOf(now), now.Year()
}

// ValidateYear rejects years outside the plausible catalog range.
func ValidateYear(year int) error {
	if year < 1960 || year > time.Now().Year()+1 {
		return fmt.Errorf("invalid year %d", year)
	}
	return nil
}

// Anime is one catalog record as delivered by the upstream service. KitsuID is
// the stable external identifier that makes upserts convergent.
type Anime struct {
	KitsuID       string   `json:"kitsu_id"`
	TitleEnglish  string   `json:"title_english"`
	TitleRomaji   string   `json:"title_romaji"`
	Synopsis      string   `json:"synopsis"`
	StartDate     string   `json:"start_date"`
	EpisodeCount  int      `json:"episode_count"`
	Subtype       string   `json:"subtype"`
	Season        Season   `json:"season"`
	Year          int      `json:"year"`
	PosterImage   string   `json:"poster_image"`
	AverageRating float64  `json:"average_rating"`
	Genres        []string `json:"genres"`
}

// Title returns the best display title available.
func (a *Anime) Title() string {
	if a.TitleEnglish != "" {
		return a.TitleEnglish
	}
	return a.TitleRomaji
}
