package clock

import "github.com/jonboulle/clockwork"

// Clock abstracts time to keep the polling loop deterministic in tests.
type Clock = clockwork.Clock

func System() Clock {
	return clockwork.NewRealClock()
}
