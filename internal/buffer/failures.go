package buffer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/GriffinCanCode/vfl/internal/flush"
)

// keptFailures is how many errors a drain reports from each end of the run:
// the first ones and the most recent ones. Everything else is only counted.
const keptFailures = 4

// FailureError summarizes the handler calls that failed since the last drain
type FailureError struct {
	Total      int
	ByCategory map[flush.Category]int
	// Errors holds the first and the most recent failures, oldest first
	Errors []error
}

func (e *FailureError) Error() string {
	var counts []string
	for _, cat := range flush.Categories {
		if n := e.ByCategory[cat]; n > 0 {
			counts = append(counts, fmt.Sprintf("%s=%d", cat, n))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d flush handler calls failed (%s)", e.Total, strings.Join(counts, ", "))
	for _, err := range e.Errors {
		b.WriteString("\n\t")
		b.WriteString(err.Error())
	}
	if omitted := e.Total - len(e.Errors); omitted > 0 {
		fmt.Fprintf(&b, "\n\t... %d more", omitted)
	}
	return b.String()
}

// Unwrap exposes the retained errors to errors.Is and errors.As
func (e *FailureError) Unwrap() []error {
	return e.Errors
}

// failureLog counts every failure but keeps a bounded number of them
type failureLog struct {
	mu     sync.Mutex
	total  int
	byCat  map[flush.Category]int
	first  []error
	recent []error // ring of the latest failures after first is full
	next   int
}

func (f *failureLog) record(cat flush.Category, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.total++
	if f.byCat == nil {
		f.byCat = make(map[flush.Category]int)
	}
	f.byCat[cat]++

	switch {
	case len(f.first) < keptFailures:
		f.first = append(f.first, err)
	case len(f.recent) < keptFailures:
		f.recent = append(f.recent, err)
	default:
		f.recent[f.next] = err
		f.next = (f.next + 1) % keptFailures
	}
}

// take returns the summary since the last call and resets, nil when nothing failed
func (f *failureLog) take() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.total == 0 {
		return nil
	}

	kept := make([]error, 0, len(f.first)+len(f.recent))
	kept = append(kept, f.first...)
	kept = append(kept, f.recent[f.next:]...)
	kept = append(kept, f.recent[:f.next]...)

	err := &FailureError{Total: f.total, ByCategory: f.byCat, Errors: kept}
	f.total, f.byCat = 0, nil
	f.first, f.recent, f.next = nil, nil, 0
	return err
}
