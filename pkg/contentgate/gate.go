package contentgate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	clierrors "github.com/zfogg/daredrop/pkg/errors"
	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/metrics"
	"github.com/zfogg/daredrop/pkg/telemetry"
)

var (
	// ErrContentBlocked is returned for a dangerous verdict
	ErrContentBlocked = errors.New("content blocked")

	// ErrAcknowledgementDeclined is returned when the user refuses a flagged warning
	ErrAcknowledgementDeclined = errors.New("content warning not acknowledged")
)

// State is the position of a submission in the gate
type State string

const (
	StateUnscanned State = "unscanned"
	StateScanning  State = "scanning"
	StateClear     State = "clear"
	StateFlagged   State = "flagged"
	StateBlocked   State = "blocked"
	StateFailed    State = "failed"
)

// UnscannedFlag marks content persisted for review without a verdict
const UnscannedFlag = "unscanned"

// Classify maps a verdict to clear, flagged or blocked
func Classify(v Verdict) State {
	switch {
	case v.IsDangerous:
		return StateBlocked
	case v.IsHarmful || v.IsNSFW:
		return StateFlagged
	default:
		return StateClear
	}
}

// Policy decides what a scan failure does
type Policy int

const (
	// PolicyFailClosed refuses content that could not be scanned
	PolicyFailClosed Policy = iota

	// PolicyReview persists unscanned content flagged for moderator review
	PolicyReview
)

// ParsePolicy reads scan.failure_policy; anything but "review" fails closed
func ParsePolicy(s string) Policy {
	if strings.EqualFold(strings.TrimSpace(s), "review") {
		return PolicyReview
	}
	return PolicyFailClosed
}

func (p Policy) String() string {
	if p == PolicyReview {
		return "review"
	}
	return "closed"
}

// Marker is stored with persisted content
type Marker struct {
	Flagged    bool
	Flags      []string
	Confidence float64
	Reason     string
}

// Acknowledger asks the user to accept a content warning
type Acknowledger interface {
	Acknowledge(ctx context.Context, v Verdict) (bool, error)
}

// AcknowledgerFunc adapts a function to Acknowledger
type AcknowledgerFunc func(ctx context.Context, v Verdict) (bool, error)

func (f AcknowledgerFunc) Acknowledge(ctx context.Context, v Verdict) (bool, error) {
	return f(ctx, v)
}

// Submission is one piece of content waiting to be published
type Submission struct {
	Request

	// Persist publishes the content with its marker
	Persist func(ctx context.Context, m Marker) error

	// Compensate removes artifacts stored before the verdict, like an uploaded video. Optional.
	Compensate func(ctx context.Context) error

	// OnState observes transitions. Optional.
	OnState func(State)
}

// Outcome describes how a submission left the gate
type Outcome struct {
	State   State
	Verdict *Verdict
	Marker  Marker
}

// Gate runs submissions through scanning
type Gate struct {
	Scanner      Scanner
	Acknowledger Acknowledger
	Policy       Policy
}

// New creates a gate
func New(scanner Scanner, ack Acknowledger, policy Policy) *Gate {
	return &Gate{Scanner: scanner, Acknowledger: ack, Policy: policy}
}

// Submit scans sub and persists it according to the verdict. Content is never
// persisted on a dangerous verdict, and never persisted unmarked without a
// clear verdict. Whenever content is not persisted, Compensate runs.
func (g *Gate) Submit(ctx context.Context, sub Submission) (out Outcome, err error) {
	ctx, span := telemetry.StartSpan(ctx, "contentgate.submit", "type", string(sub.Type), "policy", g.Policy.String())
	defer func() {
		telemetry.EndSpan(span, err)
	}()

	state := func(s State) {
		out.State = s
		if sub.OnState != nil {
			sub.OnState(s)
		}
	}
	state(StateUnscanned)
	state(StateScanning)

	verdict, scanErr := g.Scanner.Scan(ctx, sub.Request)
	if scanErr != nil {
		state(StateFailed)
		metrics.ScanVerdict(string(StateFailed))
		logger.Error("Content scan failed", "type", sub.Type, "error", scanErr)

		if g.Policy != PolicyReview {
			g.compensate(ctx, sub)
			return out, scanFailed(scanErr)
		}
		// explicit opt-in: publish for moderator review
		verdict = Verdict{Flags: []string{UnscannedFlag}, Reason: "content could not be scanned"}
		out.Verdict = &verdict
		return g.persistFlagged(ctx, sub, out, verdict)
	}

	out.Verdict = &verdict
	classified := Classify(verdict)
	metrics.ScanVerdict(string(classified))
	state(classified)

	switch classified {
	case StateBlocked:
		logger.Warn("Content blocked", "type", sub.Type, "reason", verdict.Reason, "flags", verdict.Flags)
		g.compensate(ctx, sub)
		blocked := clierrors.ContentBlockedError(verdict.Reason)
		blocked.Cause = ErrContentBlocked
		return out, blocked

	case StateFlagged:
		return g.persistFlagged(ctx, sub, out, verdict)

	default:
		return g.persist(ctx, sub, out, Marker{Confidence: verdict.Confidence})
	}
}

func (g *Gate) persistFlagged(ctx context.Context, sub Submission, out Outcome, v Verdict) (Outcome, error) {
	ok, err := g.acknowledge(ctx, v)
	if err != nil {
		g.compensate(ctx, sub)
		return out, fmt.Errorf("content warning: %w", err)
	}
	if !ok {
		g.compensate(ctx, sub)
		return out, ErrAcknowledgementDeclined
	}
	return g.persist(ctx, sub, out, Marker{
		Flagged:    true,
		Flags:      v.Flags,
		Confidence: v.Confidence,
		Reason:     v.Reason,
	})
}

func (g *Gate) acknowledge(ctx context.Context, v Verdict) (bool, error) {
	if g.Acknowledger == nil {
		return false, nil
	}
	return g.Acknowledger.Acknowledge(ctx, v)
}

func (g *Gate) persist(ctx context.Context, sub Submission, out Outcome, m Marker) (Outcome, error) {
	out.Marker = m
	if err := sub.Persist(ctx, m); err != nil {
		logger.Error("Persist after scan failed", "type", sub.Type, "error", err)
		g.compensate(ctx, sub)
		return out, err
	}
	return out, nil
}

func (g *Gate) compensate(ctx context.Context, sub Submission) {
	if sub.Compensate == nil {
		return
	}
	if err := sub.Compensate(context.WithoutCancel(ctx)); err != nil {
		logger.Error("Compensating cleanup failed", "type", sub.Type, "error", err)
	}
}

func scanFailed(cause error) error {
	if !errors.Is(cause, ErrScanUnavailable) {
		cause = fmt.Errorf("%w: %v", ErrScanUnavailable, cause)
	}
	return clierrors.ScanFailedError(cause)
}
