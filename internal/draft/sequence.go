package draft

import (
	"fmt"

	"github.com/DoyleJ11/overlay-sync/internal/overlay"
)

type Action string

const (
	ActionBan  Action = "ban"
	ActionPick Action = "pick"
)

// Step is one turn of a tournament draft. Slot indexes the team's picks or
// bans array.
type Step struct {
	Side   overlay.Side
	Action Action
	Slot   int
}

// Order is the standard 20-turn tournament draft.
var Order = withSlots([]Step{
	// Ban Phase 1
	{Side: overlay.SideBlue, Action: ActionBan},
	{Side: overlay.SideRed, Action: ActionBan},
	{Side: overlay.SideBlue, Action: ActionBan},
	{Side: overlay.SideRed, Action: ActionBan},
	{Side: overlay.SideBlue, Action: ActionBan},
	{Side: overlay.SideRed, Action: ActionBan},
	// Pick Phase 1
	{Side: overlay.SideBlue, Action: ActionPick},
	{Side: overlay.SideRed, Action: ActionPick},
	{Side: overlay.SideRed, Action: ActionPick},
	{Side: overlay.SideBlue, Action: ActionPick},
	{Side: overlay.SideBlue, Action: ActionPick},
	{Side: overlay.SideRed, Action: ActionPick},
	// Ban Phase 2
	{Side: overlay.SideRed, Action: ActionBan},
	{Side: overlay.SideBlue, Action: ActionBan},
	{Side: overlay.SideRed, Action: ActionBan},
	{Side: overlay.SideBlue, Action: ActionBan},
	// Pick Phase 2
	{Side: overlay.SideRed, Action: ActionPick},
	{Side: overlay.SideBlue, Action: ActionPick},
	{Side: overlay.SideBlue, Action: ActionPick},
	{Side: overlay.SideRed, Action: ActionPick},
})

func withSlots(steps []Step) []Step {
	type key struct {
		side   overlay.Side
		action Action
	}
	next := map[key]int{}
	for i := range steps {
		k := key{steps[i].Side, steps[i].Action}
		steps[i].Slot = next[k]
		next[k]++
	}
	return steps
}

// PhaseFor maps a step action to the phase label shown on the overlay.
func PhaseFor(a Action) string {
	if a == ActionBan {
		return overlay.PhaseBanning
	}
	return overlay.PhasePicking
}

// GoToStep points phase and turn at step i of Order and restarts the timer.
// Past the last step the phase becomes STARTING.
func (e *Editor) GoToStep(i, timer int) error {
	if i < 0 {
		return fmt.Errorf("step %d out of range", i)
	}
	return e.SetLive(func(g *overlay.GameState) {
		g.Timer = timer
		if i >= len(Order) {
			g.Phase = overlay.PhaseStarting
			return
		}
		step := Order[i]
		g.Phase = PhaseFor(step.Action)
		g.Turn = string(step.Side)
	})
}
