package models

import "strings"

// MatchKey identifies a match within one poll.
//
// IMPORTANT: the key is built from team names only. Two leagues with identically
// named teams collapse to one key; the page gives no better identity and the
// league is deliberately not part of the key.
type MatchKey string

// NewMatchKey builds "home vs away" from the displayed team names.
func NewMatchKey(homeTeam, awayTeam string) MatchKey {
	return MatchKey(homeTeam + " vs " + awayTeam)
}

// Teams splits the key back into home and away names.
func (k MatchKey) Teams() (home, away string) {
	home, away, ok := strings.Cut(string(k), " vs ")
	if !ok {
		return string(k), ""
	}
	return home, away
}

func (k MatchKey) String() string {
	return string(k)
}
