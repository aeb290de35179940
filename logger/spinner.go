package logger

import (
	"fmt"
	"sync"
	"time"
)

type Spinner struct {
	Frames  []string
	Message string
	Console *Console

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

// Start animates the spinner until Stop. It is a no-op on a
// non-interactive console.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil || !s.Console.Interactive {
		return
	}
	s.done = make(chan struct{})

	s.wg.Add(1)
	go func(done <-chan struct{}) {
		defer s.wg.Done()

		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i++ {
			fmt.Fprintf(s.Console.out, "\r%s %s ", s.Frames[i%len(s.Frames)], s.Message)
			select {
			case <-done:
				fmt.Fprint(s.Console.out, "\r")
				return
			case <-ticker.C:
			}
		}
	}(s.done)
}

// Pause clears the spinner line so log output is not interleaved with it.
// Start resumes.
func (s *Spinner) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		return
	}
	close(s.done)
	s.done = nil
	s.wg.Wait()
}

func (s *Spinner) Stop(success bool, message string) {
	s.Pause()

	if success {
		s.Console.Success("%s", message)
	} else {
		s.Console.Error("%s", message)
	}
}
