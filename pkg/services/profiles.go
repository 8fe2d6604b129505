package services

import "context"

// ProfileService resolves opaque profile references against both providers.
// It satisfies the validator's ProfileResolver contract.
type ProfileService struct {
	source *SourceClient
	dest   *DestinationClient
}

func NewProfileService(source *SourceClient, dest *DestinationClient) *ProfileService {
	return &ProfileService{source: source, dest: dest}
}

func (s *ProfileService) SourceProfileExists(ctx context.Context, profileID string) (bool, error) {
	return s.source.ProfileExists(ctx, profileID)
}

func (s *ProfileService) DestinationProfileExists(ctx context.Context, profileID string) (bool, error) {
	return s.dest.ProfileExists(ctx, profileID)
}
