// Package teams canonicalises franchise names to the short codes used by the
// player tables, so that standings join on (team, season).
package teams

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownTeam is returned for names missing from the registry. Callers
// treat it as a join failure, never as a silent no-op.
var ErrUnknownTeam = errors.New("unknown team")

// charlotteRebrandSeason is the first season the "Charlotte Hornets" name
// refers to the former Bobcats franchise rather than the 1988 franchise.
const charlotteRebrandSeason = 2014

// registry maps normalised full names to codes. Relocated franchises get
// distinct codes; renames of a continuous franchise may share one.
var registry = map[string]string{
	"atlanta hawks":                     "ATL",
	"boston celtics":                    "BOS",
	"brooklyn nets":                     "BRK",
	"chicago bulls":                     "CHI",
	"cleveland cavaliers":               "CLE",
	"dallas mavericks":                  "DAL",
	"denver nuggets":                    "DEN",
	"detroit pistons":                   "DET",
	"golden state warriors":             "GSW",
	"houston rockets":                   "HOU",
	"indiana pacers":                    "IND",
	"los angeles clippers":              "LAC",
	"los angeles lakers":                "LAL",
	"memphis grizzlies":                 "MEM",
	"miami heat":                        "MIA",
	"milwaukee bucks":                   "MIL",
	"minnesota timberwolves":            "MIN",
	"new orleans pelicans":              "NOP",
	"new york knicks":                   "NYK",
	"oklahoma city thunder":             "OKC",
	"orlando magic":                     "ORL",
	"philadelphia 76ers":                "PHI",
	"phoenix suns":                      "PHO",
	"portland trail blazers":            "POR",
	"sacramento kings":                  "SAC",
	"san antonio spurs":                 "SAS",
	"toronto raptors":                   "TOR",
	"utah jazz":                         "UTA",
	"washington wizards":                "WAS",
	"charlotte bobcats":                 "CHA",
	"kansas city kings":                 "KCK",
	"new jersey nets":                   "NJN",
	"san diego clippers":                "SDC",
	"seattle supersonics":               "SEA",
	"washington bullets":                "WSB",
	"vancouver grizzlies":               "VAN",
	"new orleans hornets":               "NOH",
	"new orleans/oklahoma city hornets": "NOK",
	"new orleans jazz":                  "NOJ",
}

// multiTeam holds the pseudo-codes of a traded player's aggregate row.
var multiTeam = map[string]bool{
	"TOT": true,
	"2TM": true,
	"3TM": true,
	"4TM": true,
	"5TM": true,
}

func normalize(name string) string {
	n := strings.TrimSpace(name)
	n = strings.TrimSuffix(n, "*") // playoff marker on standings pages
	return strings.ToLower(strings.TrimSpace(n))
}

// Lookup returns the code for a full name, ignoring season-dependent names.
// "Charlotte Hornets" resolves to the current franchise.
func Lookup(fullName string) (string, bool) {
	n := normalize(fullName)
	if n == "charlotte hornets" {
		return "CHO", true
	}
	code, ok := registry[n]
	return code, ok
}

// Resolve is Lookup with an explicit error for unknown names.
func Resolve(fullName string) (string, error) {
	code, ok := Lookup(fullName)
	if !ok {
		return "", errors.Wrapf(ErrUnknownTeam, "%q", fullName)
	}
	return code, nil
}

// ResolveSeason resolves a name as it was used in the given season-start year.
func ResolveSeason(fullName string, season int) (string, error) {
	if normalize(fullName) == "charlotte hornets" {
		if season < charlotteRebrandSeason {
			return "CHH", nil
		}
		return "CHO", nil
	}
	return Resolve(fullName)
}

// IsMultiTeam reports whether code marks a multi-team aggregate row.
func IsMultiTeam(code string) bool {
	return multiTeam[strings.ToUpper(strings.TrimSpace(code))]
}
