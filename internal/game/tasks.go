// internal/game/tasks.go
package game

import (
	"fmt"
	"time"

	"github.com/jason-s-yu/hideandseek/internal/models"
)

// reconnectGrace is how long after a reconnect an expired task is kept so the client can report
// an offline completion.
const reconnectGrace = 15 * time.Second

// expiredTaskGrace is how long an expired task can still be settled by an offline completion.
const expiredTaskGrace = 5 * time.Minute

// assignTask hands p a random catalog task that no other active hider currently holds. With
// nothing free the player stays without a task until fillTaskVacancies finds one.
func (s *State) assignTask(p *Player, now time.Time) bool {
	p.clearTask()
	held := make(map[int]struct{})
	for _, other := range s.players {
		if other != p && other.ActiveHider() && other.Task != nil {
			held[other.Task.ID] = struct{}{}
		}
	}
	free := make([]models.Task, 0, len(s.catalog))
	for _, t := range s.catalog {
		if _, taken := held[t.ID]; !taken {
			free = append(free, t)
		}
	}
	if len(free) == 0 {
		return false
	}
	t := free[s.rng.Intn(len(free))]
	p.Task = &t
	p.TaskDeadline = now.Add(t.Duration())
	return true
}

// fillTaskVacancies gives a task to every active hider that has none. It reports whether any
// task was handed out.
func (s *State) fillTaskVacancies(now time.Time) bool {
	changed := false
	for _, p := range s.players {
		if p.ActiveHider() && p.Task == nil {
			if s.assignTask(p, now) {
				changed = true
			}
		}
	}
	return changed
}

// sweepExpiredTasks clears tasks whose deadline passed and assigns fresh ones. Expiry carries no
// penalty beyond the lost points.
func (s *State) sweepExpiredTasks(now time.Time) bool {
	changed := false
	for _, p := range s.players {
		if !p.ActiveHider() || p.Task == nil || !now.After(p.TaskDeadline) {
			continue
		}
		// an offline hider may have finished the task without us knowing; the client settles it
		// with an offline completion after reconnecting
		if !p.Online() || now.Sub(p.ReattachedAt) < reconnectGrace {
			continue
		}
		expired := p.Task
		p.ExpiredTask = expired
		p.ExpiredDeadline = p.TaskDeadline
		p.ExpiredAt = now
		s.log.WithField("player_id", p.ID).Infof("task %d expired", expired.ID)
		s.notifyAll(fmt.Sprintf("%s ran out of time for a task.", p.Name))
		s.record("task_expired", p.ID, map[string]any{"task_id": expired.ID})
		s.assignTask(p, now)
		changed = true
	}
	return changed
}

// awardTask credits p for the current task and moves on to the next one.
func (s *State) awardTask(p *Player, now time.Time) {
	s.credit(p, *p.Task)
	s.assignTask(p, now)
}

func (s *State) credit(p *Player, t models.Task) {
	p.Points += t.Points
	s.record("task_completed", p.ID, map[string]any{"task_id": t.ID, "points": t.Points})
	s.notifyAll(fmt.Sprintf("%s completed a task (+%d points).", p.Name, t.Points))
}

// expiredTaskFor returns the recently expired task with id taskID, if it can still be settled.
func (s *State) expiredTaskFor(p *Player, taskID int, now time.Time) (models.Task, bool) {
	if p.ExpiredTask == nil || p.ExpiredTask.ID != taskID || now.Sub(p.ExpiredAt) > expiredTaskGrace {
		return models.Task{}, false
	}
	return *p.ExpiredTask, true
}
