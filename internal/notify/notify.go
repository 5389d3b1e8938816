package notify

import (
	"sync"

	"go.uber.org/zap"
)

// Notifier is the user-visible, non-blocking notification surface. It is
// injected into every component that runs intents so success/failure
// contracts stay testable without any concrete toast mechanism.
type Notifier interface {
	Success(msg string)
	Failure(msg string)
}

// LogNotifier renders notifications through the logger. The headless client
// has no other surface to put them on.
type LogNotifier struct {
	Log *zap.SugaredLogger
}

func (n *LogNotifier) Success(msg string) {
	n.Log.Infow(msg, "notification", "success")
}

func (n *LogNotifier) Failure(msg string) {
	n.Log.Warnw(msg, "notification", "failure")
}

// Recorder captures notifications for tests.
type Recorder struct {
	mu        sync.Mutex
	successes []string
	failures  []string
}

func (r *Recorder) Success(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, msg)
}

func (r *Recorder) Failure(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, msg)
}

func (r *Recorder) Successes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.successes...)
}

func (r *Recorder) Failures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failures...)
}
