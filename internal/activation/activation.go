// Package activation implements the activation resolver (C4): it resolves
// each cocktail PRIMARY slot against the READY list, falling over to the
// aligned FALLBACK and then to any other READY member of the cocktail's
// union, in the exact four-step order the original activation pass used.
package activation

import (
	"fmt"

	"github.com/fieldjoshua/UltrAI-JFF/internal/apperrors"
	"github.com/fieldjoshua/UltrAI-JFF/internal/cocktail"
	"github.com/fieldjoshua/UltrAI-JFF/internal/types"
)

// Resolve fills each PRIMARY slot of roster using readyList, returning the
// populated activation artifact or a precondition error.
func Resolve(cocktailName string, roster cocktail.Roster, readyList []string) (*types.ActivateArtifact, error) {
	ready := make(map[string]bool, len(readyList))
	for _, m := range readyList {
		ready[m] = true
	}

	n := len(roster.Primary)
	chosen := make(map[string]bool, n)
	activeList := make([]string, 0, n)
	reasons := make(map[string]string, n)

	union := make([]string, 0, 2*n)
	union = append(union, roster.Primary[:]...)
	union = append(union, roster.Fallback[:]...)

	for i := 0; i < n; i++ {
		primary := roster.Primary[i]
		fallback := roster.Fallback[i]

		switch {
		case ready[primary] && !chosen[primary]:
			chosen[primary] = true
			activeList = append(activeList, primary)
			reasons[primary] = types.ReasonPrimaryReady

		case ready[fallback] && !chosen[fallback]:
			chosen[fallback] = true
			activeList = append(activeList, fallback)
			reasons[primary] = fmt.Sprintf("%s:%s", types.ReasonReplacedFallback, fallback)

		default:
			alt := firstUnchosenReady(union, ready, chosen)
			if alt != "" {
				chosen[alt] = true
				activeList = append(activeList, alt)
				reasons[primary] = fmt.Sprintf("%s:%s", types.ReasonReplacedAlt, alt)
			} else {
				reasons[primary] = types.ReasonNotReadyNoReplace
			}
		}
	}

	if len(activeList) < n {
		return nil, fmt.Errorf("%w: filled %d of %d slots", apperrors.ErrCocktailUnsatisfiable, len(activeList), n)
	}
	if len(activeList) < cocktail.Quorum {
		return nil, fmt.Errorf("%w: only %d active, need %d", apperrors.ErrInsufficientActive, len(activeList), cocktail.Quorum)
	}

	backupList := make([]string, 0, n)
	for _, fb := range roster.Fallback {
		if ready[fb] && !chosen[fb] {
			backupList = append(backupList, fb)
		}
	}

	return &types.ActivateArtifact{
		ActiveList: activeList,
		BackupList: backupList,
		Quorum:     cocktail.Quorum,
		Cocktail:   cocktailName,
		Reasons:    reasons,
	}, nil
}

func firstUnchosenReady(union []string, ready, chosen map[string]bool) string {
	for _, m := range union {
		if ready[m] && !chosen[m] {
			return m
		}
	}
	return ""
}
