package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vodeneev/livewatch/internal/pkg/models"
)

const premierLeaguePage = `
<html><body>
<article>
  <header><h2> Premier League </h2></header>
  <div class="event">
    <div class="btmarket__header"><time> 45' </time></div>
    <a class="btmarket__link-name--2-rows">
      <span> Arsenal </span>
      <span>Chelsea</span>
    </a>
    <span class="btmarket__livescore-item"> 1 </span>
    <span class="btmarket__livescore-item">0</span>
    <a class="btmarket__more-bets-counter"> +57 </a>
    <div class="btmarket__selection"><button data-name="Arsenal"><span class="betbutton__odds">2.10</span></button></div>
    <div class="btmarket__selection"><button data-name="Draw"><span class="betbutton__odds">3.40</span></button></div>
    <div class="btmarket__selection"><button data-name="Chelsea"><span class="betbutton__odds"> 3.20 </span></button></div>
  </div>
</article>
</body></html>`

func TestExtract_FullEvent(t *testing.T) {
	records, err := New().Extract(premierLeaguePage)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, models.MatchRecord{
		League:    "Premier League",
		HomeTeam:  "Arsenal",
		AwayTeam:  "Chelsea",
		HomeScore: "1",
		AwayScore: "0",
		MatchTime: "45'",
		OddsHome:  "2.10",
		OddsDraw:  "3.40",
		OddsAway:  "3.20",
		MoreBets:  "+57",
	}, records[0])
}

func TestExtract_Defaults(t *testing.T) {
	tests := []struct {
		name string
		page string
		want models.MatchRecord
	}{
		{
			name: "empty event outside article",
			page: `<div class="event"></div>`,
			want: models.MatchRecord{
				League: "Unknown", HomeTeam: "N/A", AwayTeam: "N/A",
				HomeScore: "-", AwayScore: "-", MatchTime: "N/A",
				OddsHome: "N/A", OddsDraw: "N/A", OddsAway: "N/A", MoreBets: "N/A",
			},
		},
		{
			name: "article without heading and one team",
			page: `<article><div class="event">
				<div class="btmarket__link-name--2-rows"><span>Lyon</span></div>
				<span class="btmarket__livescore-item">2</span>
				<div class="btmarket__selection"><button data-name="Lyon"><span class="betbutton__odds">1.50</span></button></div>
			</div></article>`,
			want: models.MatchRecord{
				League: "Unknown", HomeTeam: "Lyon", AwayTeam: "N/A",
				HomeScore: "2", AwayScore: "-", MatchTime: "N/A",
				OddsHome: "1.50", OddsDraw: "N/A", OddsAway: "N/A", MoreBets: "N/A",
			},
		},
		{
			name: "button without data-name or odds",
			page: `<article><h2>Serie A</h2><div class="event">
				<div class="btmarket__link-name--2-rows"><span>Unknown</span><span>Roma</span></div>
				<div class="btmarket__selection"><button><span>no odds class</span></button></div>
				<div class="btmarket__selection"><button data-name="Roma"></button></div>
			</div></article>`,
			want: models.MatchRecord{
				League: "Serie A", HomeTeam: "Unknown", AwayTeam: "Roma",
				HomeScore: "-", AwayScore: "-", MatchTime: "N/A",
				OddsHome: "N/A", OddsDraw: "N/A", OddsAway: "N/A", MoreBets: "N/A",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := New().Extract(tt.page)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, tt.want, records[0])
		})
	}
}

func TestExtract_TimeSelectorPriority(t *testing.T) {
	// .btmarket__header time comes first in the document but has the lowest priority
	page := `<div class="event">
		<div class="btmarket__header"><time>HT</time></div>
		<div class="event-header__time">47:10</div>
		<div class="scoreboard__time"> 2nd <b>Half</b> </div>
	</div>`

	records, err := New().Extract(page)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2ndHalf", records[0].MatchTime)
}

func TestExtract_StrippedPiecesAreJoined(t *testing.T) {
	page := `<article><h2>
		Champions <span> League </span>
	</h2><div class="event"></div></article>`

	records, err := New().Extract(page)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ChampionsLeague", records[0].League)
}

func TestExtract_LaterDuplicateSelectionWins(t *testing.T) {
	page := `<div class="event">
		<div class="btmarket__link-name--2-rows"><span>A</span><span>B</span></div>
		<div class="btmarket__selection"><button data-name="A"><span class="betbutton__odds">1.1</span></button></div>
		<div class="btmarket__selection"><button data-name="A"><span class="betbutton__odds">1.9</span></button></div>
	</div>`

	records, err := New().Extract(page)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1.9", records[0].OddsHome)
}

func TestExtract_OddsLookupIsExact(t *testing.T) {
	page := `<div class="event">
		<div class="btmarket__link-name--2-rows"><span>Manchester United</span><span>Spurs</span></div>
		<div class="btmarket__selection"><button data-name="Man Utd"><span class="betbutton__odds">2.0</span></button></div>
		<div class="btmarket__selection"><button data-name="spurs"><span class="betbutton__odds">3.0</span></button></div>
	</div>`

	records, err := New().Extract(page)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "N/A", records[0].OddsHome)
	assert.Equal(t, "N/A", records[0].OddsAway)
}

func TestExtract_DocumentOrderAndLeagues(t *testing.T) {
	page := `
	<article><h2>La Liga</h2>
		<div class="event"><div class="btmarket__link-name--2-rows"><span>Real</span><span>Betis</span></div></div>
		<div class="event"><div class="btmarket__link-name--2-rows"><span>Sevilla</span><span>Girona</span></div></div>
	</article>
	<article><h2>Bundesliga</h2>
		<div class="event"><div class="btmarket__link-name--2-rows"><span>Bayern</span><span>Mainz</span></div></div>
	</article>`

	records, err := New().Extract(page)
	require.NoError(t, err)
	require.Len(t, records, 3)

	var got []string
	for _, r := range records {
		got = append(got, r.League+"/"+r.HomeTeam)
	}
	assert.Equal(t, []string{"La Liga/Real", "La Liga/Sevilla", "Bundesliga/Bayern"}, got)
}

func TestExtract_NoEvents(t *testing.T) {
	records, err := New().Extract("<html><body><p>maintenance</p></body></html>")
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = New().Extract("<<<not really html")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtract_Idempotent(t *testing.T) {
	first, err := New().Extract(premierLeaguePage)
	require.NoError(t, err)
	second, err := New().Extract(premierLeaguePage)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
