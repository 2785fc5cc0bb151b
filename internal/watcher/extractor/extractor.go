// Package extractor turns the in-play odds page into match records.
package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/Vodeneev/livewatch/internal/pkg/models"
)

const (
	eventSelector     = "div.event"
	teamsSelector     = ".btmarket__link-name--2-rows"
	scoreSelector     = ".btmarket__livescore-item"
	selectionSelector = ".btmarket__selection button"
	oddsSelector      = ".betbutton__odds"
	selectionNameAttr = "data-name"
)

// DefaultTimeSelectors are tried in order; the first one that matches wins.
var DefaultTimeSelectors = []string{
	"label.btmarket__live.area-livescore.event__status",
	".scoreboard__time",
	".event-header__time",
	".btmarket__header time",
}

// DefaultMoreBetsSelectors are tried in order; the first one that matches wins.
var DefaultMoreBetsSelectors = []string{
	"btmarket__name.btmarket__more-bets-counter",
	"a.btmarket__more-bets-counter",
}

// Extractor reads match records out of page markup.
type Extractor struct {
	timeSelectors     []string
	moreBetsSelectors []string
}

// New creates an Extractor with the default selector sets.
func New() *Extractor {
	return &Extractor{
		timeSelectors:     DefaultTimeSelectors,
		moreBetsSelectors: DefaultMoreBetsSelectors,
	}
}

// Extract parses raw markup and returns one record per event container, in document order.
// Missing pieces are filled with sentinels; only a failure to read the markup is an error.
func (e *Extractor) Extract(raw string) ([]models.MatchRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	var records []models.MatchRecord
	doc.Find(eventSelector).Each(func(_ int, event *goquery.Selection) {
		records = append(records, e.extractEvent(event))
	})
	return records, nil
}

func (e *Extractor) extractEvent(event *goquery.Selection) models.MatchRecord {
	rec := models.MatchRecord{
		League:    models.UnknownLeague,
		HomeTeam:  models.NotAvailable,
		AwayTeam:  models.NotAvailable,
		HomeScore: models.NoScore,
		AwayScore: models.NoScore,
		MatchTime: models.NotAvailable,
		MoreBets:  models.NotAvailable,
	}

	if v, ok := league(event); ok {
		rec.League = v
	}

	spans := event.Find(teamsSelector).First().Find("span")
	if v, ok := nth(spans, 0, strippedText); ok {
		rec.HomeTeam = v
	}
	if v, ok := nth(spans, 1, strippedText); ok {
		rec.AwayTeam = v
	}

	scores := event.Find(scoreSelector)
	if v, ok := nth(scores, 0, trimmedText); ok {
		rec.HomeScore = v
	}
	if v, ok := nth(scores, 1, trimmedText); ok {
		rec.AwayScore = v
	}

	if v, ok := firstMatch(event, e.timeSelectors, strippedText); ok {
		rec.MatchTime = v
	}
	if v, ok := firstMatch(event, e.moreBetsSelectors, trimmedText); ok {
		rec.MoreBets = v
	}

	odds := selectionOdds(event)
	rec.OddsHome = lookup(odds, rec.HomeTeam)
	rec.OddsAway = lookup(odds, rec.AwayTeam)
	rec.OddsDraw = lookup(odds, models.DrawOutcome)

	return rec
}

// league returns the first h2 under the closest enclosing article.
func league(event *goquery.Selection) (string, bool) {
	article := event.Closest("article")
	if article.Length() == 0 {
		return "", false
	}
	return nth(article.Find("h2"), 0, strippedText)
}

// selectionOdds maps each selection's data-name to its displayed odds.
// A later selection with the same name replaces an earlier one.
func selectionOdds(event *goquery.Selection) map[string]string {
	odds := make(map[string]string)
	event.Find(selectionSelector).Each(func(_ int, btn *goquery.Selection) {
		name, ok := btn.Attr(selectionNameAttr)
		if !ok {
			name = models.UnknownName
		}
		value, ok := nth(btn.Find(oddsSelector), 0, trimmedText)
		if !ok {
			value = models.NotAvailable
		}
		odds[name] = value
	})
	return odds
}

func lookup(odds map[string]string, name string) string {
	if v, ok := odds[name]; ok {
		return v
	}
	return models.NotAvailable
}

// firstMatch returns the text of the first node matched by the earliest selector that matches anything.
func firstMatch(s *goquery.Selection, selectors []string, text func(*goquery.Selection) string) (string, bool) {
	for _, sel := range selectors {
		if found := s.Find(sel); found.Length() > 0 {
			return text(found.First()), true
		}
	}
	return "", false
}

// nth returns the text of the i-th node of s.
func nth(s *goquery.Selection, i int, text func(*goquery.Selection) string) (string, bool) {
	if i >= s.Length() {
		return "", false
	}
	return text(s.Eq(i)), true
}

// strippedText strips every text piece under s and concatenates the non-empty ones.
func strippedText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		collectStripped(n, &b)
	}
	return b.String()
}

func collectStripped(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(strings.TrimSpace(n.Data))
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectStripped(c, b)
	}
}

// trimmedText is the full text of s with surrounding whitespace removed.
func trimmedText(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}
