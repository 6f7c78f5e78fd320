package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a transcode job.
type Status string

const (
	StatusPending            Status = "PENDING"
	StatusRunning            Status = "RUNNING"
	StatusSucceeded          Status = "SUCCEEDED"
	StatusPartiallySucceeded Status = "PARTIALLY_SUCCEEDED"
	StatusFailed             Status = "FAILED"
)

// Valid status transitions:
// PENDING -> RUNNING -> SUCCEEDED
//                   \-> PARTIALLY_SUCCEEDED
//                   \-> FAILED
var validTransitions = map[Status][]Status{
	StatusPending:            {StatusRunning},
	StatusRunning:            {StatusSucceeded, StatusPartiallySucceeded, StatusFailed},
	StatusSucceeded:          {},
	StatusPartiallySucceeded: {},
	StatusFailed:             {},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusPartiallySucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) CanTransitionTo(next Status) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s.IsValid() && len(validTransitions[s]) == 0
}

func (s Status) String() string {
	return string(s)
}

// Outcome is the result state of a single rendition or thumbnail.
type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeFailed    Outcome = "FAILED"
)

// SourceAsset is the immutable input of a job.
type SourceAsset struct {
	Path     string
	OwnerID  string
	BaseName string
}

// Validate checks that the asset can be mapped onto the output layout.
// OwnerID and BaseName become path elements, so separators and dot names are rejected.
func (a SourceAsset) Validate() error {
	if strings.TrimSpace(a.Path) == "" {
		return fmt.Errorf("%w: source path is empty", ErrInvalidSource)
	}
	if err := validatePathElement("owner ID", a.OwnerID); err != nil {
		return err
	}
	if err := validatePathElement("base name", a.BaseName); err != nil {
		return err
	}
	return nil
}

func validatePathElement(field, value string) error {
	switch {
	case strings.TrimSpace(value) == "":
		return fmt.Errorf("%w: %s is empty", ErrInvalidSource, field)
	case value == "." || value == "..":
		return fmt.Errorf("%w: %s %q is reserved", ErrInvalidSource, field, value)
	case strings.ContainsAny(value, `/\`):
		return fmt.Errorf("%w: %s %q contains a path separator", ErrInvalidSource, field, value)
	case strings.Contains(value, "%"):
		return fmt.Errorf("%w: %s %q contains %%", ErrInvalidSource, field, value)
	}
	return nil
}

// RenditionOutput is one tier's encode result. Immutable once recorded on a job.
type RenditionOutput struct {
	Tier         Tier
	Status       Outcome
	Err          error
	ManifestPath string
	SegmentPaths []string

	// Set by the output locator for succeeded tiers.
	PublicURL        string
	StorageKey       string
	SegmentKeyPrefix string
}

// Succeeded reports whether the rendition produced a usable manifest.
func (r RenditionOutput) Succeeded() bool {
	return r.Status == OutcomeSucceeded
}

// FailedRendition builds a Failed rendition for tier.
func FailedRendition(tier Tier, cause error) RenditionOutput {
	var efe *EncodeFailedError
	if !errors.As(cause, &efe) {
		cause = NewEncodeFailed(tier, cause)
	}
	return RenditionOutput{Tier: tier, Status: OutcomeFailed, Err: cause}
}

// Thumbnail is the poster image result. Its failure never fails a job.
type Thumbnail struct {
	Path          string
	OffsetSeconds int
	Status        Outcome
	Err           error

	PublicURL  string
	StorageKey string
}

// Succeeded reports whether a poster image was produced.
func (t Thumbnail) Succeeded() bool {
	return t.Status == OutcomeSucceeded
}

// ConditionKind classifies a non-fatal condition recorded on a job.
type ConditionKind string

const (
	ConditionProbeDegraded   ConditionKind = "PROBE_DEGRADED"
	ConditionThumbnailFailed ConditionKind = "THUMBNAIL_FAILED"
)

// Condition is a non-fatal event kept on the job for observability.
type Condition struct {
	Kind    ConditionKind
	Message string
}

// TranscodeJob is the record of one pipeline run.
type TranscodeJob struct {
	ID              uuid.UUID
	Source          SourceAsset
	RequestedTiers  []Tier
	DurationSeconds int
	Renditions      []RenditionOutput
	Thumbnail       Thumbnail
	Status          Status
	Conditions      []Condition
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewTranscodeJob creates a PENDING job for source and tiers.
func NewTranscodeJob(source SourceAsset, tiers []Tier) (*TranscodeJob, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateTiers(tiers); err != nil {
		return nil, err
	}

	now := time.Now()
	return &TranscodeJob{
		ID:             uuid.New(),
		Source:         source,
		RequestedTiers: append([]Tier(nil), tiers...),
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// TransitionTo attempts to change the job status.
// Returns error if the transition is not allowed.
func (j *TranscodeJob) TransitionTo(next Status) error {
	if !next.IsValid() {
		return ErrInvalidTransition
	}
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	j.UpdatedAt = time.Now()
	return nil
}

// Start moves a PENDING job to RUNNING. A job that is already RUNNING
// (a redelivered task) is left as is.
func (j *TranscodeJob) Start() error {
	if j.Status == StatusRunning {
		return nil
	}
	return j.TransitionTo(StatusRunning)
}

// RecordDuration stores the probed duration. A probe error degrades the
// duration to 0 and is kept as a condition.
func (j *TranscodeJob) RecordDuration(seconds int, probeErr error) error {
	if j.Status.IsTerminal() {
		return ErrJobFinalized
	}
	if probeErr != nil || seconds < 0 {
		seconds = 0
	}
	if probeErr != nil {
		j.addCondition(ConditionProbeDegraded, probeErr)
	}
	j.DurationSeconds = seconds
	j.UpdatedAt = time.Now()
	return nil
}

// RecordThumbnail stores the poster result.
func (j *TranscodeJob) RecordThumbnail(t Thumbnail) error {
	if j.Status.IsTerminal() {
		return ErrJobFinalized
	}
	if !t.Succeeded() {
		t.Status = OutcomeFailed
		j.addCondition(ConditionThumbnailFailed, t.Err)
	}
	j.Thumbnail = t
	j.UpdatedAt = time.Now()
	return nil
}

// RecordRenditions stores one output per requested tier in request order.
func (j *TranscodeJob) RecordRenditions(outputs []RenditionOutput) error {
	if j.Status.IsTerminal() {
		return ErrJobFinalized
	}
	if len(outputs) != len(j.RequestedTiers) {
		return fmt.Errorf("got %d renditions for %d requested tiers", len(outputs), len(j.RequestedTiers))
	}
	for i, out := range outputs {
		if out.Tier.Label != j.RequestedTiers[i].Label {
			return fmt.Errorf("rendition %d is %s, expected %s", i, out.Tier.Label, j.RequestedTiers[i].Label)
		}
	}
	j.Renditions = append([]RenditionOutput(nil), outputs...)
	j.UpdatedAt = time.Now()
	return nil
}

// Finalize computes the overall status from the recorded renditions.
//
// Partial-success policy: all tiers succeeded -> SUCCEEDED, at least one
// succeeded -> PARTIALLY_SUCCEEDED, none -> FAILED. The thumbnail never
// influences the outcome.
func (j *TranscodeJob) Finalize() error {
	if len(j.Renditions) != len(j.RequestedTiers) {
		return fmt.Errorf("cannot finalize job with %d of %d renditions", len(j.Renditions), len(j.RequestedTiers))
	}

	return j.TransitionTo(j.overallStatus())
}

func (j *TranscodeJob) overallStatus() Status {
	succeeded := len(j.SucceededRenditions())
	switch {
	case succeeded == 0:
		return StatusFailed
	case succeeded == len(j.Renditions):
		return StatusSucceeded
	default:
		return StatusPartiallySucceeded
	}
}

// MarkDeliveryFailed fails a finalized job's rendition that could not be
// delivered to the content store and recomputes the overall status with the
// same partial-success policy as Finalize.
func (j *TranscodeJob) MarkDeliveryFailed(label string, cause error) error {
	if !j.Status.IsTerminal() {
		return fmt.Errorf("%w: job is %s", ErrInvalidTransition, j.Status)
	}
	for i, r := range j.Renditions {
		if r.Tier.Label != label {
			continue
		}
		if !r.Succeeded() {
			return nil
		}
		j.Renditions[i] = FailedRendition(r.Tier, fmt.Errorf("%w: %w", ErrDeliveryFailed, cause))
		j.Status = j.overallStatus()
		if j.Status == StatusFailed && j.FailureReason == "" {
			j.FailureReason = "no rendition could be delivered"
		}
		j.UpdatedAt = time.Now()
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownTier, label)
}

// MarkThumbnailDeliveryFailed drops a poster that could not be delivered.
// The overall status is unaffected.
func (j *TranscodeJob) MarkThumbnailDeliveryFailed(cause error) {
	if !j.Thumbnail.Succeeded() {
		return
	}
	err := fmt.Errorf("%w: %w", ErrDeliveryFailed, cause)
	j.Thumbnail = Thumbnail{
		Path:          j.Thumbnail.Path,
		OffsetSeconds: j.Thumbnail.OffsetSeconds,
		Status:        OutcomeFailed,
		Err:           err,
	}
	j.addCondition(ConditionThumbnailFailed, err)
	j.UpdatedAt = time.Now()
}

// Abort fails the whole job. Nothing of an aborted job is delivered, so every
// tier is recorded as Failed with cause, including tiers that had already
// finished, and a produced thumbnail loses its address.
func (j *TranscodeJob) Abort(cause error) error {
	if j.Status.IsTerminal() {
		return ErrJobFinalized
	}
	if err := j.Start(); err != nil {
		return err
	}
	if cause == nil {
		cause = errors.New("job aborted")
	}

	outputs := make([]RenditionOutput, len(j.RequestedTiers))
	for i, tier := range j.RequestedTiers {
		if r, ok := j.Rendition(tier.Label); ok && !r.Succeeded() && r.Err != nil {
			outputs[i] = FailedRendition(tier, r.Err)
			continue
		}
		outputs[i] = FailedRendition(tier, cause)
	}
	j.Renditions = outputs

	if j.Thumbnail.Succeeded() {
		j.Thumbnail = Thumbnail{
			Path:          j.Thumbnail.Path,
			OffsetSeconds: j.Thumbnail.OffsetSeconds,
			Status:        OutcomeFailed,
			Err:           cause,
		}
	}
	j.FailureReason = cause.Error()
	return j.TransitionTo(StatusFailed)
}

// SucceededRenditions returns the succeeded renditions in request order.
func (j *TranscodeJob) SucceededRenditions() []RenditionOutput {
	var out []RenditionOutput
	for _, r := range j.Renditions {
		if r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

// Rendition returns the rendition recorded for a tier label.
func (j *TranscodeJob) Rendition(label string) (RenditionOutput, bool) {
	for _, r := range j.Renditions {
		if r.Tier.Label == label {
			return r, true
		}
	}
	return RenditionOutput{}, false
}

// HasCondition reports whether a non-fatal condition of kind was recorded.
func (j *TranscodeJob) HasCondition(kind ConditionKind) bool {
	for _, c := range j.Conditions {
		if c.Kind == kind {
			return true
		}
	}
	return false
}

func (j *TranscodeJob) addCondition(kind ConditionKind, err error) {
	c := Condition{Kind: kind}
	if err != nil {
		c.Message = err.Error()
	}
	j.Conditions = append(j.Conditions, c)
}

// TierLocation is the public address of one delivered rendition.
type TierLocation struct {
	ManifestURL string
	StorageKey  string
}

// JobResult is the output contract consumed by storage sync and the job status API.
type JobResult struct {
	Tier720         *TierLocation
	Tier1080        *TierLocation
	ThumbnailURL    *string
	DurationSeconds int
	OverallStatus   Status
}

// Result projects the job onto the output contract. Only succeeded tiers
// and a succeeded thumbnail are addressed. A FAILED job is never delivered
// and carries no addresses.
func (j *TranscodeJob) Result() JobResult {
	res := JobResult{
		DurationSeconds: j.DurationSeconds,
		OverallStatus:   j.Status,
	}
	if j.Status == StatusFailed {
		return res
	}
	res.Tier720 = j.tierLocation(Tier720p.Label)
	res.Tier1080 = j.tierLocation(Tier1080p.Label)
	if j.Thumbnail.Succeeded() && j.Thumbnail.PublicURL != "" {
		url := j.Thumbnail.PublicURL
		res.ThumbnailURL = &url
	}
	return res
}

func (j *TranscodeJob) tierLocation(label string) *TierLocation {
	r, ok := j.Rendition(label)
	if !ok || !r.Succeeded() {
		return nil
	}
	return &TierLocation{ManifestURL: r.PublicURL, StorageKey: r.StorageKey}
}
