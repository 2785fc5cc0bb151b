package models

import "time"

// Sentinels used instead of absent values so records always compare field by field.
const (
	NotAvailable  = "N/A"
	NoScore       = "-"
	UnknownLeague = "Unknown"
	UnknownName   = "Unknown"
	DrawOutcome   = "Draw"
)

// Canonical field labels. Fingerprints and change sets are keyed by these.
const (
	FieldLeague    = "League"
	FieldHomeTeam  = "Home Team"
	FieldAwayTeam  = "Away Team"
	FieldHomeScore = "Home Score"
	FieldAwayScore = "Away Score"
	FieldMatchTime = "Match Time"
	FieldOddsHome  = "Odds (Home)"
	FieldOddsDraw  = "Odds (Draw)"
	FieldOddsAway  = "Odds (Away)"
	FieldMoreBets  = "More Bets"
)

// FieldOrder is the display order of record fields.
var FieldOrder = []string{
	FieldMatchTime,
	FieldLeague,
	FieldHomeTeam,
	FieldAwayTeam,
	FieldHomeScore,
	FieldAwayScore,
	FieldOddsHome,
	FieldOddsDraw,
	FieldOddsAway,
	FieldMoreBets,
}

// MatchRecord is one live match as shown on the odds page.
// Every value is display text; the page does not guarantee numeric formatting.
type MatchRecord struct {
	League    string `json:"league"`
	HomeTeam  string `json:"home_team"`
	AwayTeam  string `json:"away_team"`
	HomeScore string `json:"home_score"`
	AwayScore string `json:"away_score"`
	MatchTime string `json:"match_time"`
	OddsHome  string `json:"odds_home"`
	OddsDraw  string `json:"odds_draw"`
	OddsAway  string `json:"odds_away"`
	MoreBets  string `json:"more_bets"`
}

// Key returns the identity key of the record.
func (m MatchRecord) Key() MatchKey {
	return NewMatchKey(m.HomeTeam, m.AwayTeam)
}

// Fields returns the record as label -> value.
func (m MatchRecord) Fields() map[string]string {
	return map[string]string{
		FieldLeague:    m.League,
		FieldHomeTeam:  m.HomeTeam,
		FieldAwayTeam:  m.AwayTeam,
		FieldHomeScore: m.HomeScore,
		FieldAwayScore: m.AwayScore,
		FieldMatchTime: m.MatchTime,
		FieldOddsHome:  m.OddsHome,
		FieldOddsDraw:  m.OddsDraw,
		FieldOddsAway:  m.OddsAway,
		FieldMoreBets:  m.MoreBets,
	}
}

// Batch is the record set of one successful poll that differed from the previous one.
type Batch struct {
	Records     []MatchRecord           `json:"records"`
	Fingerprint string                  `json:"fingerprint"`
	FetchedAt   time.Time               `json:"fetched_at"`
	Changes     map[MatchKey]FieldDelta `json:"changes,omitempty"`
}

// LeagueGroup is a presentation view of records sharing a league.
type LeagueGroup struct {
	League  string        `json:"league"`
	Matches []MatchRecord `json:"matches"`
}

// GroupByLeague groups records by league, leagues ordered by first appearance.
func GroupByLeague(records []MatchRecord) []LeagueGroup {
	index := make(map[string]int)
	var groups []LeagueGroup
	for _, r := range records {
		i, ok := index[r.League]
		if !ok {
			i = len(groups)
			index[r.League] = i
			groups = append(groups, LeagueGroup{League: r.League})
		}
		groups[i].Matches = append(groups[i].Matches, r)
	}
	return groups
}
