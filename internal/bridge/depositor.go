package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/datastations/packaging-service/internal/domain"
	"github.com/datastations/packaging-service/internal/platform/logger"
	"github.com/datastations/packaging-service/internal/platform/transformer"
)

// Task binds everything one adapter run needs: an immutable snapshot of the
// dataset, its files, the decoded target descriptor, and the collaborators
// the adapter may call out to. A fresh Task (and a fresh Depositor) is built
// for every (dataset, target) pair.
type Task struct {
	Dataset    *domain.Dataset
	Files      []*domain.DataFile
	Descriptor domain.TargetDescriptor
	WorkDir    string

	// ResolveInput returns the first identifier persisted by the named
	// predecessor target, for descriptors that declare an input dependency.
	ResolveInput func(fromTargetName string) (domain.IdentifierItem, bool)

	Transformer transformer.Client
	Log         *logger.Logger
}

// Depositor pushes one dataset into one external repository and reports the
// outcome. Implementations return an error only for faults they cannot
// express as a DepositResult; the chain executor converts those to a uniform
// error result.
type Depositor interface {
	Deposit(ctx context.Context) (*domain.DepositResult, error)
}

// Factory builds a fresh Depositor for a task.
type Factory func(task Task) Depositor

// metadataDocument decodes the dataset metadata and, when the descriptor
// declares an input dependency, folds the predecessor's identifier into it.
func (t Task) metadataDocument() (map[string]interface{}, error) {
	doc := map[string]interface{}{}
	if t.Dataset.Metadata != "" {
		if err := json.Unmarshal([]byte(t.Dataset.Metadata), &doc); err != nil {
			return nil, fmt.Errorf("dataset metadata decode: %w", err)
		}
	}
	if t.Descriptor.Input != nil && t.Descriptor.Input.FromTargetName != "" {
		if t.ResolveInput == nil {
			return nil, fmt.Errorf("target %s needs input from %s but no resolver is bound",
				t.Descriptor.RepoName, t.Descriptor.Input.FromTargetName)
		}
		identifier, ok := t.ResolveInput(t.Descriptor.Input.FromTargetName)
		if !ok {
			return nil, fmt.Errorf("target %s: predecessor %s has no identifier yet",
				t.Descriptor.RepoName, t.Descriptor.Input.FromTargetName)
		}
		key := t.Descriptor.Input.Key
		if key == "" {
			key = "input-identifier"
		}
		doc[key] = identifier.Value
	}
	return doc, nil
}

// transformedMetadata runs the named transformation when the descriptor
// configures one, otherwise returns the raw document.
func (t Task) transformedMetadata(ctx context.Context, name string) (string, error) {
	doc, err := t.metadataDocument()
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	if t.Descriptor.Metadata == nil {
		return string(raw), nil
	}
	for _, tm := range t.Descriptor.Metadata.TransformedMetadata {
		if tm.Name != name || tm.TransformerURL == "" {
			continue
		}
		if t.Transformer == nil {
			return "", fmt.Errorf("target %s: transformer not configured", t.Descriptor.RepoName)
		}
		return t.Transformer.Transform(ctx, tm.TransformerURL, t.Descriptor.Password, string(raw))
	}
	return string(raw), nil
}

// contentFiles returns the files whose bytes exist in the working area.
func (t Task) contentFiles() []*domain.DataFile {
	files := make([]*domain.DataFile, 0, len(t.Files))
	for _, file := range t.Files {
		if file.State != domain.FileRegistered {
			files = append(files, file)
		}
	}
	return files
}

func failedResult(status domain.DepositStatus, err error) *domain.DepositResult {
	result := domain.NewDepositResult()
	result.Status = status
	result.Notes = err.Error()
	return result
}

func elapsedSeconds(start time.Time) float64 {
	return time.Since(start).Seconds()
}
