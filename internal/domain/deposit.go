package domain

import "time"

// ResponseContentType tags the body format of a target's raw response.
type ResponseContentType string

const (
	ContentTypeXML       ResponseContentType = "xml"
	ContentTypeJSON      ResponseContentType = "json"
	ContentTypeText      ResponseContentType = "text"
	ContentTypeRDF       ResponseContentType = "rdf"
	ContentTypeUndefined ResponseContentType = "undefined"
)

// IdentifierProtocol names the scheme of an identifier assigned by a target.
type IdentifierProtocol string

const (
	ProtocolDOI       IdentifierProtocol = "doi"
	ProtocolHandle    IdentifierProtocol = "handle"
	ProtocolURNNBN    IdentifierProtocol = "urn:nbn"
	ProtocolURNUUID   IdentifierProtocol = "urn:uuid"
	ProtocolSWHID     IdentifierProtocol = "swhid"
	ProtocolUndefined IdentifierProtocol = "undefined"
)

// IdentifierItem is one identifier assigned by an external repository.
type IdentifierItem struct {
	Value    string             `json:"value"`
	Protocol IdentifierProtocol `json:"protocol"`
	URL      string             `json:"url,omitempty"`
}

// TargetResponse captures the external repository's reply to one deposit.
type TargetResponse struct {
	URL         string              `json:"url,omitempty"`
	StatusCode  int                 `json:"status-code"`
	Duration    float64             `json:"duration"`
	Status      DepositStatus       `json:"status,omitempty"`
	Error       string              `json:"error,omitempty"`
	Message     string              `json:"message,omitempty"`
	Identifiers []IdentifierItem    `json:"identifiers,omitempty"`
	Content     string              `json:"content,omitempty"`
	ContentType ResponseContentType `json:"content-type,omitempty"`
}

// DepositResult is the uniform output of one adapter run. It is what the
// chain executor persists as TargetRepo.Output, whatever the adapter did.
type DepositResult struct {
	DepositTime string          `json:"deposit-time,omitempty"`
	Status      DepositStatus   `json:"deposit-status"`
	Notes       string          `json:"notes,omitempty"`
	Response    *TargetResponse `json:"response,omitempty"`
}

// NewDepositResult returns a result stamped with the current time and an
// undefined status.
func NewDepositResult() *DepositResult {
	return &DepositResult{
		DepositTime: time.Now().UTC().Format("2006-01-02 15:04:05.000000"),
		Status:      DepositUndefined,
	}
}

// ResponseDuration returns the recorded wall-clock duration of the run in
// seconds, or zero when no response was captured.
func (r *DepositResult) ResponseDuration() float64 {
	if r == nil || r.Response == nil {
		return 0
	}
	return r.Response.Duration
}

// FirstIdentifier returns the first identifier of the response, if any.
func (r *DepositResult) FirstIdentifier() (IdentifierItem, bool) {
	if r == nil || r.Response == nil || len(r.Response.Identifiers) == 0 {
		return IdentifierItem{}, false
	}
	return r.Response.Identifiers[0], true
}
