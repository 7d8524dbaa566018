package policy

// Scheduled implements the SCHEDULED evaluator (spec.md §4.5): the
// first matching schedule item wins; no match means desired_amps = 0.
// When ctx.PriceWindowActive is set, it overrides schedule matching
// with the price-strategy decision for the current hour.
type Scheduled struct{}

func (Scheduled) Evaluate(ctx SetpointContext) Result {
	if ctx.PriceWindowActive != nil {
		if !*ctx.PriceWindowActive {
			return Result{DesiredAmps: 0, DesiredPhases: ctx.ActivePhases, ScheduleMatched: false}
		}
		amps := clamp(ctx.PriceWindowAmps, 0, maxCurrentCeiling(ctx))
		return Result{DesiredAmps: amps, DesiredPhases: ctx.ActivePhases, ScheduleMatched: true}
	}

	for _, item := range ctx.Schedule {
		if item.Matches(ctx.Now) {
			amps := clamp(item.CurrentAmps, 0, maxCurrentCeiling(ctx))
			return Result{DesiredAmps: amps, DesiredPhases: ctx.ActivePhases, ScheduleMatched: true}
		}
	}
	return Result{DesiredAmps: 0, DesiredPhases: ctx.ActivePhases, ScheduleMatched: false}
}
