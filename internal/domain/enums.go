package domain

// ReleaseVersion is the caller-supplied release tag of a dataset.
type ReleaseVersion string

const (
	ReleaseDraft      ReleaseVersion = "DRAFT"
	ReleasePublish    ReleaseVersion = "PUBLISH"
	ReleasePublished  ReleaseVersion = "PUBLISHED"
	ReleasePublishing ReleaseVersion = "PUBLISHING"
)

func ParseReleaseVersion(s string) (ReleaseVersion, bool) {
	switch ReleaseVersion(s) {
	case ReleaseDraft, ReleasePublish, ReleasePublished, ReleasePublishing:
		return ReleaseVersion(s), true
	}
	return "", false
}

// DepositStatus is the per-target deposit state machine value.
type DepositStatus string

const (
	DepositInitial    DepositStatus = "initial"
	DepositProgress   DepositStatus = "progress"
	DepositFinish     DepositStatus = "finish"
	DepositRejected   DepositStatus = "rejected"
	DepositFailed     DepositStatus = "failed"
	DepositError      DepositStatus = "error"
	DepositSuccess    DepositStatus = "success"
	DepositAccepted   DepositStatus = "accepted"
	DepositFinalizing DepositStatus = "finalizing"
	DepositSubmitted  DepositStatus = "submitted"
	DepositPublished  DepositStatus = "published"
	DepositUndefined  DepositStatus = "undefined"
	DepositDeposited  DepositStatus = "deposited"
)

// IsTerminalSuccess reports whether the status ends a target's state machine
// on the success side. The chain executor only advances past targets in one
// of these states.
func (s DepositStatus) IsTerminalSuccess() bool {
	switch s {
	case DepositFinish, DepositAccepted, DepositSuccess, DepositDeposited:
		return true
	}
	return false
}

// IsTerminalFailure reports whether the status ends a target's state machine
// on the failure side.
func (s DepositStatus) IsTerminalFailure() bool {
	switch s {
	case DepositError, DepositFailed, DepositRejected:
		return true
	}
	return false
}

// DatasetState tracks whether a dataset's declared files have all arrived.
type DatasetState string

const (
	DatasetNotReady DatasetState = "not-ready"
	DatasetReady    DatasetState = "ready"
	DatasetReleased DatasetState = "released"
)

// FileState is the work state of one declared file.
type FileState string

const (
	// FileGenerated rows are created with content by system-side transforms.
	FileGenerated FileState = "GENERATED"
	// FileUploaded rows have their bytes confirmed in the working area.
	FileUploaded FileState = "UPLOADED"
	// FileRegistered rows are placeholders awaiting upload.
	FileRegistered FileState = "REGISTERED"
)

// FilePermission is the declared visibility of one file.
type FilePermission string

const (
	FilePublic  FilePermission = "public"
	FilePrivate FilePermission = "private"
)
