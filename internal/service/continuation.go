package service

import "context"

// Continue resumes a grant after interaction: it resolves the grant by its
// continuation credentials, requires it to be granted, and mints its access
// token. This is the single point where a long-lived credential is created.
func (s *Service) Continue(
	ctx context.Context,
	continueID string,
	continueToken string,
	interactRef string,
) (
	*Grant,
	*AccessToken,
	error,
) {
	grant, err := s.GetByContinuation(ctx, continueID, continueToken, interactRef)
	if err != nil {
		return nil, nil, err
	}

	if grant.State != GrantStateGranted {
		return nil, nil, ErrRequestDenied
	}

	token, err := s.IssueAccessToken(ctx, grant)
	if err != nil {
		return nil, nil, err
	}

	return grant, token, nil
}
