package client

import (
	"context"
	"time"

	"github.com/exgen-nl/exgen-api/pkg/dto"
)

// DownloadPhase is a user-facing progress label. Phases advance on a timer
// and do not map one-to-one onto the two underlying API calls.
type DownloadPhase string

const (
	PhaseVoorbereiden DownloadPhase = "voorbereiden"
	PhaseVerpakken    DownloadPhase = "verpakken"
	PhaseVerifieren   DownloadPhase = "verifiëren"
	PhaseAfronden     DownloadPhase = "afronden"
)

var downloadPhases = []DownloadPhase{PhaseVoorbereiden, PhaseVerpakken, PhaseVerifieren, PhaseAfronden}

// RetriableError marks a failure the caller may retry: network trouble or a
// server-side error. Validation and authorization failures are not wrapped.
type RetriableError struct {
	Err error
}

func (e *RetriableError) Error() string { return e.Err.Error() }
func (e *RetriableError) Unwrap() error { return e.Err }

type downloadAPI interface {
	InitiateDownload(ctx context.Context, productID, versionID string) (*dto.InitiateDownloadResponse, error)
	PackageDownload(ctx context.Context, downloadID string) (*dto.DownloadPackageResponse, error)
}

// DownloadResult is the outcome of a completed download flow.
type DownloadResult struct {
	DownloadID       string
	VerificationCode string
	URL              string
	Filename         string
	SizeBytes        int64
}

// DownloadFlow runs the initiate and package calls while reporting timed
// progress phases.
type DownloadFlow struct {
	api      downloadAPI
	interval time.Duration
	onPhase  func(DownloadPhase)
}

// DownloadOption configures a DownloadFlow.
type DownloadOption func(*DownloadFlow)

// WithPhaseInterval sets how long each progress phase is shown.
func WithPhaseInterval(d time.Duration) DownloadOption {
	return func(f *DownloadFlow) { f.interval = d }
}

// WithPhaseCallback registers a progress listener.
func WithPhaseCallback(fn func(DownloadPhase)) DownloadOption {
	return func(f *DownloadFlow) { f.onPhase = fn }
}

// NewDownloadFlow wraps a Client for package downloads.
func NewDownloadFlow(api downloadAPI, opts ...DownloadOption) *DownloadFlow {
	f := &DownloadFlow{api: api, interval: 500 * time.Millisecond}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *DownloadFlow) emit(phase DownloadPhase) {
	if f.onPhase != nil {
		f.onPhase(phase)
	}
}

type downloadOutcome struct {
	result *DownloadResult
	err    error
}

// Run initiates a download and assembles its package. Progress phases tick on
// a fixed schedule; when the calls finish first, the remaining phases are
// emitted immediately so listeners always see the full sequence.
func (f *DownloadFlow) Run(ctx context.Context, productID, versionID string) (*DownloadResult, error) {
	outcome := make(chan downloadOutcome, 1)
	go func() {
		initiated, err := f.api.InitiateDownload(ctx, productID, versionID)
		if err != nil {
			outcome <- downloadOutcome{err: classifyDownloadError(err)}
			return
		}
		packaged, err := f.api.PackageDownload(ctx, initiated.DownloadID)
		if err != nil {
			outcome <- downloadOutcome{err: classifyDownloadError(err)}
			return
		}
		outcome <- downloadOutcome{result: &DownloadResult{
			DownloadID:       initiated.DownloadID,
			VerificationCode: initiated.VerificationCode,
			URL:              packaged.URL,
			Filename:         packaged.Filename,
			SizeBytes:        packaged.SizeBytes,
		}}
	}()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	phase := 0
	f.emit(downloadPhases[phase])
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if phase < len(downloadPhases)-1 {
				phase++
				f.emit(downloadPhases[phase])
			}
		case out := <-outcome:
			if out.err != nil {
				return nil, out.err
			}
			for phase++; phase < len(downloadPhases); phase++ {
				f.emit(downloadPhases[phase])
			}
			return out.result, nil
		}
	}
}

// classifyDownloadError wraps transient failures so callers can offer retry.
func classifyDownloadError(err error) error {
	if apiErr, ok := err.(*APIError); ok {
		if apiErr.Status == 0 || apiErr.Status >= 500 {
			return &RetriableError{Err: apiErr}
		}
	}
	return err
}
