package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	SubmissionStatusUnread  = "unread"
	SubmissionStatusRead    = "read"
	SubmissionStatusSpam    = "spam"
	SubmissionStatusDeleted = "deleted"

	submissionIPMaxLength        = 64
	submissionUserAgentMaxLength = 400
	submissionGeoMaxLength       = 8
)

var (
	ErrInvalidSubmissionFormID = errors.New("invalid_submission_form_id")
	ErrInvalidSubmissionStatus = errors.New("invalid_submission_status")
	ErrEmptySubmissionPayload  = errors.New("empty_submission_payload")
)

// Submission is one persisted instance of user-supplied form data. Rows are
// created only by the internal processor, never by the public endpoint.
type Submission struct {
	ID        string `gorm:"primaryKey;size:36"`
	FormID    string `gorm:"index;not null;size:36"`
	Payload   string `gorm:"not null"`
	Metadata  string
	Status    string    `gorm:"not null;size:16;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// SubmissionMetadata carries request-derived context alongside the payload.
type SubmissionMetadata struct {
	IP              string `json:"ip,omitempty"`
	UserAgent       string `json:"ua,omitempty"`
	Geo             string `json:"geo,omitempty"`
	TestMode        bool   `json:"test_mode"`
	SubjectOverride string `json:"subject_override,omitempty"`
	ReplyTo         string `json:"reply_to,omitempty"`
}

// SubmissionInput holds the raw values used to construct a Submission.
type SubmissionInput struct {
	FormID   string
	Payload  map[string]string
	Metadata SubmissionMetadata
}

// NewSubmission constructs a Submission with validated, normalized fields and
// status unread.
func NewSubmission(input SubmissionInput) (Submission, error) {
	formID := strings.TrimSpace(input.FormID)
	if formID == "" {
		return Submission{}, ErrInvalidSubmissionFormID
	}
	if len(input.Payload) == 0 {
		return Submission{}, ErrEmptySubmissionPayload
	}

	encodedPayload, payloadErr := json.Marshal(input.Payload)
	if payloadErr != nil {
		return Submission{}, payloadErr
	}

	metadata := input.Metadata
	metadata.IP = truncateValue(strings.TrimSpace(metadata.IP), submissionIPMaxLength)
	metadata.UserAgent = truncateValue(strings.TrimSpace(metadata.UserAgent), submissionUserAgentMaxLength)
	metadata.Geo = truncateValue(strings.TrimSpace(metadata.Geo), submissionGeoMaxLength)

	encodedMetadata, metadataErr := json.Marshal(metadata)
	if metadataErr != nil {
		return Submission{}, metadataErr
	}

	return Submission{
		ID:       uuid.NewString(),
		FormID:   formID,
		Payload:  string(encodedPayload),
		Metadata: string(encodedMetadata),
		Status:   SubmissionStatusUnread,
	}, nil
}

// ParsedPayload decodes the stored payload JSON.
func (submission Submission) ParsedPayload() map[string]string {
	payload := map[string]string{}
	_ = json.Unmarshal([]byte(submission.Payload), &payload)
	return payload
}

// ParsedMetadata decodes the stored metadata JSON.
func (submission Submission) ParsedMetadata() SubmissionMetadata {
	var metadata SubmissionMetadata
	_ = json.Unmarshal([]byte(submission.Metadata), &metadata)
	return metadata
}

// ValidateSubmissionStatus reports whether status names a known submission state.
func ValidateSubmissionStatus(status string) error {
	switch status {
	case SubmissionStatusUnread, SubmissionStatusRead, SubmissionStatusSpam, SubmissionStatusDeleted:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidSubmissionStatus, status)
	}
}

func truncateValue(input string, max int) string {
	if len(input) <= max {
		return input
	}
	return input[:max]
}
