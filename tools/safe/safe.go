package safe

import (
	"RTGateway/logger"
)

// Go starts a goroutine that recovers from panic, so a panicking bus
// callback or connection loop does not take down the whole gateway.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
