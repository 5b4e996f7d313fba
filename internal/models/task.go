package models

import "time"

// Task is one entry of the task catalog. Tasks are never consumed; the same task can be
// handed out again once no active hider holds it.
type Task struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	TimeLimit   int    `json:"time_limit_seconds"`
	Points      int    `json:"points"`
}

// Duration returns the task's time limit.
func (t Task) Duration() time.Duration {
	return time.Duration(t.TimeLimit) * time.Second
}

// Location is a reported GPS fix. Accuracy is in meters and optional.
type Location struct {
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}
