package features

import "github.com/fortuna/mvp/internal/schema"

// DroppedFeature is one entry of a frozen drop-list.
type DroppedFeature struct {
	Name      string
	Rationale string
}

// DropListVersion identifies DropListV1 in logs and artifacts.
const DropListVersion = "v1"

// DropListV1 removes features that correlate at |r| >= 0.85 with a
// counterpart of higher importance. It is fixed, not recomputed per run;
// evaluate.Redundancy reports candidates for a future version.
var DropListV1 = []DroppedFeature{
	{schema.FieldGoalsMade, "season total tracks total_points; its per-game rate is kept"},
	{schema.ThreePointsMade, "tracks three_points_attempts"},
	{schema.TwoPointsMade, "tracks field_goal_attempts and total_points"},
	{schema.FreeThrowsMade, "tracks free_throws_attempts"},
	{schema.OffensiveRebounds, "component of total_rebonds"},
	{schema.DefensiveRebounds, "component of total_rebonds"},
	{schema.WinPct, "superseded by team_standing"},
	{schema.Minutes, "tracks game_played and usage_%"},
	{schema.PersonalFouls, "tracks minutes; lowest importance of the pair"},
	{schema.GamesStarted, "tracks game_played"},
	{schema.OffensiveBoxPlusMinus, "component of box_+/-"},
	{schema.OffensiveWinShares, "component of total_win_shares"},
	{schema.DefensiveWinShares, "component of total_win_shares"},
	{schema.TwoPointAttempts, "tracks field_goal_attempts"},
	{schema.EffectiveFieldGoalPct, "tracks true_shooting_%"},
	{schema.EfficiencyRating, "tracks box_+/- and value_over_replacement"},
}
