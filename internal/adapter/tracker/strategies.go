package tracker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/syncbridge/syncbridge/internal/domain/entity"
	"github.com/syncbridge/syncbridge/internal/port/reconciler"
)

// EntityTypeIssue is the entity type the tracker strategies handle.
const EntityTypeIssue = "issue"

// Register wires the issue push/pull strategies into the registry.
func Register(reg *reconciler.Registry, client *Client) {
	s := &issueStrategy{client: client}
	reg.Register(EntityTypeIssue, s)
}

// issueStrategy reconciles issue entities against the tracker. The entity
// payload is the serialized Issue.
type issueStrategy struct {
	client *Client
}

// PushToExternal writes the entity's payload to the tracker, creating the
// issue when the entity has no external ID yet.
func (s *issueStrategy) PushToExternal(ctx context.Context, e *entity.Entity) (*entity.Entity, error) {
	var issue Issue
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &issue); err != nil {
			return nil, fmt.Errorf("decode issue payload: %w", err)
		}
	}
	if issue.Title == "" {
		return nil, fmt.Errorf("issue entity %s has no title to push", e.ID)
	}

	var (
		result *Issue
		err    error
	)
	if e.ExternalID == "" {
		result, err = s.client.CreateIssue(ctx, &issue)
	} else {
		issue.ID = e.ExternalID
		result, err = s.client.UpdateIssue(ctx, &issue)
	}
	if err != nil {
		return nil, err
	}

	return applyIssue(e, result)
}

// PullFromExternal refreshes the entity's payload from the tracker.
func (s *issueStrategy) PullFromExternal(ctx context.Context, e *entity.Entity) (*entity.Entity, error) {
	if e.ExternalID == "" {
		return nil, fmt.Errorf("issue entity %s has no external id to pull", e.ID)
	}

	issue, err := s.client.GetIssue(ctx, e.ExternalID)
	if err != nil {
		return nil, err
	}

	return applyIssue(e, issue)
}

// applyIssue maps a tracker issue back onto the entity: payload, external ID
// from the tracker's ID, internal ID from the issue key when not yet linked.
func applyIssue(e *entity.Entity, issue *Issue) (*entity.Entity, error) {
	payload, err := json.Marshal(issue)
	if err != nil {
		return nil, fmt.Errorf("encode issue payload: %w", err)
	}

	updated := e.Clone()
	updated.Payload = payload
	if issue.ID != "" {
		updated.ExternalID = issue.ID
	}
	if updated.InternalID == "" && issue.Key != "" {
		updated.InternalID = issue.Key
	}
	if issue.UpdatedAt != "" {
		if updated.Metadata == nil {
			updated.Metadata = make(map[string]string)
		}
		updated.Metadata[entity.MetaExternalModified] = issue.UpdatedAt
	}
	return updated, nil
}
