/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package show

import (
	"math/rand/v2"

	"github.com/Seednode/petshow/choreo"
)

// IdleClips are the one-shot flourishes the droid performs between walks.
var IdleClips = []string{
	"BuddyDroid_01_rig.ao|BuddyDroid_NAV_Idle03",
	"BuddyDroid_01_rig.ao|BuddyDroid_NAV_Idle02",
	"BuddyDroid_01_rig.ao|BuddyDroid_NAV_IdleAlert",
	"BuddyDroid_01_rig.ao|BuddyDroid_NAV_Idle04",
}

// Routine builds the steps for one performance.
type Routine func(rng *rand.Rand) []choreo.Step

// DefaultRoutine enters from behind the stage, runs to the centre, wanders to
// two random spots with an idle flourish before each, runs back to the centre
// and then exits toward the front.
func DefaultRoutine(rng *rand.Rand) []choreo.Step {
	origin := choreo.V(0, 0, 0)

	steps := []choreo.Step{
		&choreo.Teleport{Target: choreo.V(0, 0, 300)},
		&choreo.Turn{Toward: origin, Clip: choreo.WalkClip},
		choreo.Run(origin),
	}

	for range 2 {
		target := choreo.V(100-rng.Float64()*200, 0, 200-rng.Float64()*400)

		steps = append(steps,
			idle(rng),
			&choreo.Turn{Toward: target, Clip: choreo.WalkClip},
			choreo.Walk(target),
		)
	}

	exit := choreo.V(0, 0, -300)

	return append(steps,
		&choreo.Turn{Toward: origin, Clip: choreo.WalkClip},
		choreo.Run(origin),
		idle(rng),
		&choreo.Turn{Toward: exit, Clip: choreo.WalkClip},
		choreo.Run(exit),
	)
}

func idle(rng *rand.Rand) choreo.Step {
	return &choreo.Clip{Name: IdleClips[rng.IntN(len(IdleClips))]}
}
