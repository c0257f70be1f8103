package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fortuna/mvp/internal/pipeline"
	"github.com/fortuna/mvp/internal/ranking"
)

func TestPrintResultShowsPercentages(t *testing.T) {
	res := &pipeline.Result{Ranking: &ranking.Ranking{
		Season: 2024,
		Entries: []ranking.Entry{
			{Rank: 1, Player: "Nikola Jokic", Score: 0.6},
			{Rank: 2, Player: "Luka Doncic", Score: 0.3},
			{Rank: 3, Player: "Jayson Tatum", Score: 0.1},
		},
	}}

	var buf bytes.Buffer
	printResult(&buf, res, 2)

	out := buf.String()
	assert.Contains(t, out, "Top 2 MVP candidates for 2024")
	assert.Contains(t, out, "Nikola Jokic")
	assert.Contains(t, out, "66.67%")
	assert.Contains(t, out, "33.33%")
	assert.NotContains(t, out, "Jayson Tatum")
}

func TestPrintResultMarksDegeneratePercentages(t *testing.T) {
	res := &pipeline.Result{Ranking: &ranking.Ranking{
		Season: 2024,
		Entries: []ranking.Entry{
			{Rank: 1, Player: "A", Score: 0.2},
			{Rank: 2, Player: "B", Score: -0.1},
		},
	}}

	var buf bytes.Buffer
	printResult(&buf, res, 2)
	assert.Contains(t, buf.String(), "N/A")
	assert.NotContains(t, buf.String(), "%")
}

func TestPrintResultNilIsSilent(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, nil, 5)
	printResult(&buf, &pipeline.Result{}, 5)
	assert.Empty(t, buf.String())
}
