// Package jobcodec converts transcode jobs to and from their stored JSON form.
// The explicit record types keep storage formats independent of the domain model.
package jobcodec

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/abrpack/internal/domain/model"
)

// Job is the JSON representation of a TranscodeJob.
type Job struct {
	ID              string      `json:"id"`
	SourcePath      string      `json:"source_path"`
	OwnerID         string      `json:"owner_id"`
	BaseName        string      `json:"base_name"`
	RequestedTiers  []string    `json:"requested_tiers"`
	DurationSeconds int         `json:"duration_seconds"`
	Renditions      []Rendition `json:"renditions"`
	Thumbnail       Thumbnail   `json:"thumbnail"`
	Status          string      `json:"status"`
	Conditions      []Condition `json:"conditions"`
	FailureReason   string      `json:"failure_reason,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Rendition is the JSON representation of a RenditionOutput.
type Rendition struct {
	Tier             string   `json:"tier"`
	Status           string   `json:"status"`
	Error            string   `json:"error,omitempty"`
	ManifestPath     string   `json:"manifest_path,omitempty"`
	SegmentPaths     []string `json:"segment_paths,omitempty"`
	PublicURL        string   `json:"public_url,omitempty"`
	StorageKey       string   `json:"storage_key,omitempty"`
	SegmentKeyPrefix string   `json:"segment_key_prefix,omitempty"`
}

// Thumbnail is the JSON representation of a Thumbnail.
type Thumbnail struct {
	Path          string `json:"path,omitempty"`
	OffsetSeconds int    `json:"offset_seconds"`
	Status        string `json:"status,omitempty"`
	Error         string `json:"error,omitempty"`
	PublicURL     string `json:"public_url,omitempty"`
	StorageKey    string `json:"storage_key,omitempty"`
}

// Condition is the JSON representation of a Condition.
type Condition struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

// FromJob converts a domain job to its record form.
func FromJob(job *model.TranscodeJob) Job {
	return Job{
		ID:              job.ID.String(),
		SourcePath:      job.Source.Path,
		OwnerID:         job.Source.OwnerID,
		BaseName:        job.Source.BaseName,
		RequestedTiers:  TierLabels(job.RequestedTiers),
		DurationSeconds: job.DurationSeconds,
		Renditions:      FromRenditions(job.Renditions),
		Thumbnail:       FromThumbnail(job.Thumbnail),
		Status:          job.Status.String(),
		Conditions:      FromConditions(job.Conditions),
		FailureReason:   job.FailureReason,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

// ToJob converts the record back to a domain job.
func (j Job) ToJob() (*model.TranscodeJob, error) {
	id, err := uuid.Parse(j.ID)
	if err != nil {
		return nil, fmt.Errorf("parse job ID: %w", err)
	}

	tiers, err := ParseTierLabels(j.RequestedTiers)
	if err != nil {
		return nil, err
	}

	renditions, err := ToRenditions(j.Renditions)
	if err != nil {
		return nil, err
	}

	status := model.Status(j.Status)
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid status %q", j.Status)
	}

	return &model.TranscodeJob{
		ID: id,
		Source: model.SourceAsset{
			Path:     j.SourcePath,
			OwnerID:  j.OwnerID,
			BaseName: j.BaseName,
		},
		RequestedTiers:  tiers,
		DurationSeconds: j.DurationSeconds,
		Renditions:      renditions,
		Thumbnail:       j.Thumbnail.ToThumbnail(),
		Status:          status,
		Conditions:      ToConditions(j.Conditions),
		FailureReason:   j.FailureReason,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}, nil
}

// TierLabels returns the labels of tiers in order.
func TierLabels(tiers []model.Tier) []string {
	labels := make([]string, len(tiers))
	for i, t := range tiers {
		labels[i] = t.Label
	}
	return labels
}

// ParseTierLabels resolves stored labels against the tier catalog.
func ParseTierLabels(labels []string) ([]model.Tier, error) {
	tiers := make([]model.Tier, len(labels))
	for i, label := range labels {
		t, err := model.ParseTier(label)
		if err != nil {
			return nil, err
		}
		tiers[i] = t
	}
	return tiers, nil
}

// FromRenditions converts rendition outputs to their record form.
func FromRenditions(outputs []model.RenditionOutput) []Rendition {
	records := make([]Rendition, len(outputs))
	for i, r := range outputs {
		records[i] = Rendition{
			Tier:             r.Tier.Label,
			Status:           string(r.Status),
			Error:            errorMessage(r.Err),
			ManifestPath:     r.ManifestPath,
			SegmentPaths:     r.SegmentPaths,
			PublicURL:        r.PublicURL,
			StorageKey:       r.StorageKey,
			SegmentKeyPrefix: r.SegmentKeyPrefix,
		}
	}
	return records
}

// ToRenditions converts records back to rendition outputs.
// Stored errors are restored as opaque messages.
func ToRenditions(records []Rendition) ([]model.RenditionOutput, error) {
	if len(records) == 0 {
		return nil, nil
	}

	outputs := make([]model.RenditionOutput, len(records))
	for i, r := range records {
		tier, err := model.ParseTier(r.Tier)
		if err != nil {
			return nil, fmt.Errorf("rendition %d: %w", i, err)
		}
		outputs[i] = model.RenditionOutput{
			Tier:             tier,
			Status:           model.Outcome(r.Status),
			Err:              restoreError(r.Error),
			ManifestPath:     r.ManifestPath,
			SegmentPaths:     r.SegmentPaths,
			PublicURL:        r.PublicURL,
			StorageKey:       r.StorageKey,
			SegmentKeyPrefix: r.SegmentKeyPrefix,
		}
	}
	return outputs, nil
}

// FromThumbnail converts a thumbnail to its record form.
func FromThumbnail(t model.Thumbnail) Thumbnail {
	return Thumbnail{
		Path:          t.Path,
		OffsetSeconds: t.OffsetSeconds,
		Status:        string(t.Status),
		Error:         errorMessage(t.Err),
		PublicURL:     t.PublicURL,
		StorageKey:    t.StorageKey,
	}
}

// ToThumbnail converts the record back to a thumbnail.
func (t Thumbnail) ToThumbnail() model.Thumbnail {
	return model.Thumbnail{
		Path:          t.Path,
		OffsetSeconds: t.OffsetSeconds,
		Status:        model.Outcome(t.Status),
		Err:           restoreError(t.Error),
		PublicURL:     t.PublicURL,
		StorageKey:    t.StorageKey,
	}
}

// FromConditions converts conditions to their record form.
func FromConditions(conditions []model.Condition) []Condition {
	records := make([]Condition, len(conditions))
	for i, c := range conditions {
		records[i] = Condition{Kind: string(c.Kind), Message: c.Message}
	}
	return records
}

// ToConditions converts records back to conditions.
func ToConditions(records []Condition) []model.Condition {
	if len(records) == 0 {
		return nil
	}
	conditions := make([]model.Condition, len(records))
	for i, c := range records {
		conditions[i] = model.Condition{Kind: model.ConditionKind(c.Kind), Message: c.Message}
	}
	return conditions
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func restoreError(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}
