package metrics

import (
	"strconv"
	"time"
)

func (r *Registry) RecordAction(kind string) {
	r.ActionsTotal.WithLabelValues(kind).Inc()
}

func (r *Registry) RecordTargetReached(object int64) {
	r.TargetsReachedTotal.WithLabelValues(strconv.FormatInt(object, 10)).Inc()
}

func (r *Registry) RecordTick(elapsed time.Duration, objects int) {
	r.TicksTotal.Inc()
	r.SimulatedSeconds.Set(elapsed.Seconds())
	r.Objects.Set(float64(objects))
}

func (r *Registry) RecordStateChange(to string) {
	r.StateChangesTotal.WithLabelValues(to).Inc()
}

func (r *Registry) RecordEpisode(reward float64, ticks int, states int) {
	r.TrainingEpisodesTotal.Inc()
	r.TrainingEpisodeReward.Observe(reward)
	r.TrainingEpisodeTicks.Observe(float64(ticks))
	r.PolicyStates.Set(float64(states))
}

func (r *Registry) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
