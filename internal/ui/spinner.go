package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner is a blocking-free line spinner for work done before the
// interactive view starts.
type Spinner struct {
	mu       sync.Mutex
	message  string
	frames   []string
	interval time.Duration
	out      io.Writer
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// NewConnectionSpinner spins while dialing the relay.
func NewConnectionSpinner(message string) *Spinner {
	return newSpinner(message, spinner.Globe)
}

// NewWaitingSpinner spins while waiting on a peer or device.
func NewWaitingSpinner(message string) *Spinner {
	return newSpinner(message, spinner.Points)
}

func newSpinner(message string, s spinner.Spinner) *Spinner {
	return &Spinner{
		message:  message,
		frames:   s.Frames,
		interval: s.FPS,
		out:      os.Stderr,
		done:     make(chan struct{}),
	}
}

func (s *Spinner) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			s.mu.Lock()
			fmt.Fprintf(s.out, "\r%s %s", SpinnerStyle.Render(s.frames[i%len(s.frames)]), s.message)
			s.mu.Unlock()
			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *Spinner) Stop() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		fmt.Fprint(s.out, "\r\033[K")
	})
}

func (s *Spinner) Success(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render(IconSuccess), message)
}

func (s *Spinner) Error(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "%s %s\n", ErrorStyle.Render(IconError), message)
}

func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}
