package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"igengage/pkg/models"
	"igengage/pkg/retrieval"
)

const (
	ProgressBar   = "━"
	ProgressEmpty = "─"
	barWidth      = 20
)

// Progress shows a one-line status per phase. It implements
// retrieval.Recorder so the controller drives it directly.
type Progress struct {
	p         *Printer
	caps      models.Caps
	mu        sync.Mutex
	counts    map[string]int
	retries   int
	refreshes int
	started   time.Time
}

// NewProgress creates a tracker for one post
func NewProgress(p *Printer, caps models.Caps) *Progress {
	return &Progress{
		p:       p,
		caps:    caps,
		counts:  make(map[string]int),
		started: time.Now(),
	}
}

func (pr *Progress) limitFor(phase string) models.Limit {
	if phase == string(retrieval.PhaseLikes) {
		return pr.caps.MaxLikes
	}
	return pr.caps.MaxComments
}

// Bar renders the progress bar for phase
func (pr *Progress) Bar(phase string) string {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.bar(phase)
}

func (pr *Progress) bar(phase string) string {
	n := pr.counts[phase]
	limit := pr.limitFor(phase)
	if limit.IsUnbounded() {
		return fmt.Sprintf("[%s] %d", strings.Repeat(ProgressEmpty, barWidth), n)
	}

	filled := n * barWidth / int(limit)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, barWidth-filled)
	return fmt.Sprintf("[%s] %d/%d", bar, n, int(limit))
}

// ItemFetched implements retrieval.Recorder
func (pr *Progress) ItemFetched(phase string) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	pr.counts[phase]++
	pr.p.Printf("\r%s %s", pr.p.paint(Cyan)(fmt.Sprintf("%-8s", phase)), pr.bar(phase))
}

// Retry implements retrieval.Recorder
func (pr *Progress) Retry(phase, reason string) {
	pr.mu.Lock()
	pr.retries++
	pr.mu.Unlock()

	pr.p.Printf("\n")
	pr.p.Warning(fmt.Sprintf("%s: %s, restarting phase", phase, strings.ReplaceAll(reason, "_", " ")))
}

// Refresh implements retrieval.Recorder
func (pr *Progress) Refresh(ok bool) {
	pr.mu.Lock()
	pr.refreshes++
	pr.mu.Unlock()

	if ok {
		pr.p.Success("Session refreshed")
	} else {
		pr.p.Error("Session refresh failed", nil)
	}
}

// PhaseFinished implements retrieval.Recorder
func (pr *Progress) PhaseFinished(phase, outcome string, d time.Duration) {
	pr.p.Printf("\n")
	msg := fmt.Sprintf("%s %s in %s", phase, outcome, FormatDuration(d))
	if outcome == retrieval.StateCompleted.String() {
		pr.p.Success(msg)
		return
	}
	pr.p.Warning(msg)
}

// Totals returns retries and refreshes seen so far
func (pr *Progress) Totals() (retries, refreshes int) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.retries, pr.refreshes
}

// Summary prints the outcome of a run and where it was saved
func (p *Printer) Summary(res *retrieval.Result, path string) {
	if res == nil || res.Post == nil {
		return
	}
	post := res.Post

	p.Printf("\n")
	p.Highlight("[POST] " + post.URL)
	p.Info("Posted by", "@"+post.OwnerUsername)
	if !post.TakenAt.IsZero() {
		p.Info("Posted on", post.TakenAt.Format("2006-01-02 15:04"))
	}
	p.Info("Likes", fmt.Sprintf("%d collected of %d", res.Count(models.KindLike), post.LikeCount))
	p.Info("Comments", fmt.Sprintf("%d collected of %d", res.Count(models.KindComment), post.CommentCount))

	for _, ph := range res.Phases {
		line := fmt.Sprintf("  %s %-8s %-9s %d items", p.paint(Dim)("•"), ph.Phase, ph.Outcome, ph.Fetched)
		switch {
		case ph.Resumed:
			line += " (from checkpoint)"
		case ph.Retries > 0:
			line += fmt.Sprintf(" after %d restarts", ph.Retries)
		}
		p.Printf("%s\n", line)
		if ph.Err != nil {
			p.Printf("    %s\n", ph.Err)
		}
	}

	if path != "" {
		p.Success("Saved to " + path)
	}
	p.Info("Elapsed", FormatDuration(res.Finished.Sub(res.Started)))
}

// FormatDuration formats d for humans
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
