package utils

import "time"

// TimeNow returns the current time in UTC. Every persisted timestamp goes through it.
func TimeNow() time.Time {
	return time.Now().UTC()
}
