// Package schema names the columns exchanged with the scraping and training
// collaborators. Names match their files exactly, including the historical
// spellings ("rebonds") and symbols ("%", "+/-").
package schema

const (
	PlayerName = "player_name"
	Position   = "position"
	Age        = "age"
	Team       = "team"
	Conference = "conf"
	WinPct     = "win_pct"

	GamesPlayed  = "game_played"
	GamesStarted = "game_starter"
	Minutes      = "minutes_played"

	FieldGoalsMade        = "field_goal_made"
	FieldGoalAttempts     = "field_goal_attempts"
	FieldGoalPct          = "field_goal_percentage"
	ThreePointsMade       = "three_points_made"
	ThreePointAttempts    = "three_points_attempts"
	ThreePointPct         = "three_points_percentage"
	TwoPointsMade         = "two_points_made"
	TwoPointAttempts      = "two_points_attempts"
	TwoPointPct           = "two_points_percentage"
	EffectiveFieldGoalPct = "effective_fg_percentage"
	FreeThrowsMade        = "free_throws_made"
	FreeThrowAttempts     = "free_throws_attempts"
	FreeThrowPct          = "free_throws_percentage"

	OffensiveRebounds = "offensive_rebonds"
	DefensiveRebounds = "defensive_rebonds"
	TotalRebounds     = "total_rebonds"
	Assists           = "assists"
	Steals            = "steals"
	Blocks            = "blocks"
	Turnovers         = "turnovers"
	PersonalFouls     = "personal_fouls"
	Points            = "total_points"
	TripleDoubles     = "triple_double"

	EfficiencyRating      = "efficiency_rating"
	TrueShootingPct       = "true_shooting_%"
	ThreePointRate        = "3pt_attempt_rate"
	FreeThrowRate         = "FT_attempt_rate"
	OffensiveReboundPct   = "off_reb_%"
	DefensiveReboundPct   = "def_reb_%"
	TotalReboundPct       = "total_reb_%"
	AssistPct             = "assist_%"
	StealPct              = "steal_%"
	BlockPct              = "blk_%"
	TurnoverPct           = "turnover_%"
	UsagePct              = "usage_%"
	OffensiveWinShares    = "off_win_shares"
	DefensiveWinShares    = "def_win_shares"
	WinShares             = "total_win_shares"
	WinSharesPer48        = "ws_per_48"
	OffensiveBoxPlusMinus = "off_box_+/-"
	DefensiveBoxPlusMinus = "def_box_+/-"
	BoxPlusMinus          = "box_+/-"
	ValueOverReplacement  = "value_over_replacement"

	SeasonYear = "season_year"
	IsMVP      = "is_MVP"

	PositionC  = "position_C"
	PositionPF = "position_PF"
	PositionPG = "position_PG"
	PositionSF = "position_SF"
	PositionSG = "position_SG"

	TeamStanding = "team_standing"

	// PerGameSuffix is appended to a counting stat to name its rate.
	PerGameSuffix = "_per_game"
)

// Shooting splits in file order.
var Shooting = []string{
	FieldGoalsMade, FieldGoalAttempts, FieldGoalPct,
	ThreePointsMade, ThreePointAttempts, ThreePointPct,
	TwoPointsMade, TwoPointAttempts, TwoPointPct,
	EffectiveFieldGoalPct,
	FreeThrowsMade, FreeThrowAttempts, FreeThrowPct,
}

// Performance counting stats in file order.
var Performance = []string{
	OffensiveRebounds, DefensiveRebounds, TotalRebounds,
	Assists, Steals, Blocks, Turnovers, PersonalFouls,
	Points, TripleDoubles,
}

// Advanced metrics in file order.
var Advanced = []string{
	EfficiencyRating, TrueShootingPct, ThreePointRate, FreeThrowRate,
	OffensiveReboundPct, DefensiveReboundPct, TotalReboundPct,
	AssistPct, StealPct, BlockPct, TurnoverPct, UsagePct,
	OffensiveWinShares, DefensiveWinShares, WinShares, WinSharesPer48,
	OffensiveBoxPlusMinus, DefensiveBoxPlusMinus, BoxPlusMinus,
	ValueOverReplacement,
}

// Meta columns close every table.
var Meta = []string{SeasonYear, IsMVP}

// PositionCategories is the fixed one-hot category set.
var PositionCategories = []string{"C", "PF", "PG", "SF", "SG"}

// PositionColumns are the indicator columns for PositionCategories.
var PositionColumns = []string{PositionC, PositionPF, PositionPG, PositionSF, PositionSG}

// Concat joins column groups into one ordered list.
func Concat(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Merged is the projection of the merged player-season table.
func Merged() []string {
	return Concat(
		[]string{PlayerName, Position, Age, Team, Conference, WinPct, GamesPlayed, GamesStarted, Minutes},
		Shooting, Performance, Advanced, Meta,
	)
}

// Cleaned is the projection of the cleaned table.
func Cleaned() []string {
	return Concat(
		[]string{PlayerName},
		PositionColumns,
		[]string{Age, Conference, WinPct, GamesPlayed, GamesStarted, Minutes},
		Shooting, Performance, Advanced, Meta,
	)
}
