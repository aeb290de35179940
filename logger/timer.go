package logger

import "time"

type Timer struct {
	StartTime time.Time
	Name      string
	Console   *Console
}

// End logs the elapsed time at debug level and returns it.
func (t *Timer) End() time.Duration {
	d := time.Since(t.StartTime)
	t.Console.Logger.Debug(t.Name+" completed", "elapsed", d.Round(time.Millisecond))
	return d
}
