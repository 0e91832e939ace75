package domain

import "encoding/json"

// TargetState is the externally visible progress of one chain step.
type TargetState struct {
	RepoName      string          `json:"repo-name"`
	DisplayName   string          `json:"display-name"`
	DepositStatus DepositStatus   `json:"deposit-status"`
	DepositTime   string          `json:"deposit-time,omitempty"`
	Duration      float64         `json:"duration"`
	Output        json.RawMessage `json:"output-response,omitempty"`
}

// Asset is one dataset plus the ordered state of its targets, as returned by
// the progress-state query surface.
type Asset struct {
	DatasetID      string        `json:"dataset-id"`
	Title          string        `json:"title"`
	ReleaseVersion string        `json:"release-version"`
	Version        string        `json:"version,omitempty"`
	CreatedDate    string        `json:"created-date"`
	SavedDate      string        `json:"saved-date"`
	SubmittedDate  string        `json:"submitted-date,omitempty"`
	Targets        []TargetState `json:"targets"`
}

// OwnerAssets lists every asset belonging to one owner.
type OwnerAssets struct {
	OwnerID string  `json:"owner-id"`
	Assets  []Asset `json:"assets"`
}

// SubmitReceipt is the synchronous reply to a submission or upload
// completion: whether the request was accepted and whether chain processing
// started.
type SubmitReceipt struct {
	Status          string `json:"status"`
	DatasetID       string `json:"dataset-id"`
	StartProcessing bool   `json:"start-process"`
}
