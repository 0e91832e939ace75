package domain

// ChainDescriptor is the per-application target list fetched from the repo
// assistant configuration service. Field aliases follow the service's wire
// format.
type ChainDescriptor struct {
	AssistantConfigName string             `json:"assistant-config-name"`
	Description         string             `json:"description"`
	AppName             string             `json:"app-name"`
	AppConfigURL        string             `json:"app-config-url"`
	Targets             []TargetDescriptor `json:"targets"`
	FileConversions     []FileConversion   `json:"file-conversions,omitempty"`
}

// TargetDescriptor configures one chain step: which adapter runs it, where it
// deposits, with which credentials, and how its metadata is transformed. The
// serialized descriptor is stored encrypted as TargetRepo.Config.
type TargetDescriptor struct {
	RepoName              string          `json:"repo-name"`
	DisplayName           string          `json:"repo-display-name"`
	Adapter               string          `json:"bridge-module-class"`
	BaseURL               string          `json:"base-url"`
	TargetURL             string          `json:"target-url"`
	Username              string          `json:"username,omitempty"`
	Password              string          `json:"password,omitempty"`
	Metadata              *TargetMetadata `json:"metadata,omitempty"`
	InitialReleaseVersion string          `json:"initial-release-version,omitempty"`
	Input                 *TargetInput    `json:"input,omitempty"`
}

// TargetInput declares a data dependency on an earlier chain step: the
// adapter consumes the first identifier of that step's persisted output.
type TargetInput struct {
	FromTargetName string `json:"from-target-name"`
	// Key is the metadata property the resolved identifier is folded into
	// before transformation.
	Key string `json:"key,omitempty"`
}

type TargetMetadata struct {
	Specification       []string              `json:"specification,omitempty"`
	TransformedMetadata []TransformedMetadata `json:"transformed-metadata"`
}

type TransformedMetadata struct {
	Name           string `json:"name"`
	TransformerURL string `json:"transformer-url,omitempty"`
	TargetDir      string `json:"target-dir,omitempty"`
	Restricted     *bool  `json:"restricted,omitempty"`
}

type FileConversion struct {
	OriginType    string `json:"origin-type"`
	TargetType    string `json:"target-type"`
	ConversionURL string `json:"conversion-url"`
}

// TargetCredentials carries caller-supplied credentials for one named target,
// matched against the descriptor by symbolic target name.
type TargetCredentials struct {
	TargetRepoName string       `json:"target-repo-name"`
	Credentials    *Credentials `json:"credentials,omitempty"`
}

type Credentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type TargetsCredentials struct {
	TargetsCredentials []TargetCredentials `json:"targets-credentials"`
}
