package policy

// Manual implements the MANUAL evaluator (spec.md §4.5): desired_amps
// is the configured intended current, clamped; phases are left as-is.
type Manual struct{}

func (Manual) Evaluate(ctx SetpointContext) Result {
	amps := clamp(ctx.IntendedCurrent, 0, maxCurrentCeiling(ctx))
	return Result{DesiredAmps: amps, DesiredPhases: ctx.ActivePhases}
}
