package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-ingest/pkg/repositories"
)

// LinkageResolver finds subscribed projects that have not received a file yet.
type LinkageResolver interface {
	// MissingProjects returns the subscribed project ids without a link to fileID,
	// in subscription order. Empty when fully linked.
	MissingProjects(ctx context.Context, fileID uuid.UUID, subscribed []uuid.UUID) ([]uuid.UUID, error)
}

type linkageResolver struct {
	linkRepo repositories.FileProjectLinkRepository
}

// NewLinkageResolver creates a resolver backed by the link repository.
func NewLinkageResolver(linkRepo repositories.FileProjectLinkRepository) LinkageResolver {
	return &linkageResolver{linkRepo: linkRepo}
}

var _ LinkageResolver = (*linkageResolver)(nil)

func (r *linkageResolver) MissingProjects(ctx context.Context, fileID uuid.UUID, subscribed []uuid.UUID) ([]uuid.UUID, error) {
	if len(subscribed) == 0 {
		return nil, nil
	}

	linked, err := r.linkRepo.ListProjectIDs(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("list links for file %s: %w", fileID, err)
	}

	have := make(map[uuid.UUID]struct{}, len(linked)+len(subscribed))
	for _, id := range linked {
		have[id] = struct{}{}
	}

	var missing []uuid.UUID
	for _, id := range subscribed {
		if _, ok := have[id]; ok {
			continue
		}
		have[id] = struct{}{} // drop duplicate subscriptions
		missing = append(missing, id)
	}
	return missing, nil
}
