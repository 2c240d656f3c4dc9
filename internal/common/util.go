package common

import log "github.com/sirupsen/logrus"

// RecoverLog recovers a panic in the calling goroutine and logs it
// rather than crashing the process. Used at the boundary of fire-and-
// forget goroutines (event dispatch, leader heartbeats) where a single
// bad payload must not take the whole node down.
func RecoverLog() {
	if r := recover(); r != nil {
		log.WithField("panic", r).Error("recovered from panic")
	}
}
