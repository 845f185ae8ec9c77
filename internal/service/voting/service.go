// Package voting provides the vote ledger service: exactly-once ballot
// casting, retraction, and authoritative tallying for membership
// applications.
package voting

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/frekv/gatekeeper/internal/cache"
	prommetrics "github.com/frekv/gatekeeper/internal/metrics"
	"github.com/frekv/gatekeeper/internal/models"
	"github.com/frekv/gatekeeper/internal/repository"
	"github.com/frekv/gatekeeper/pkg/logger"
)

// VoteRepository interface for vote ledger operations.
type VoteRepository interface {
	Cast(ctx context.Context, applicationID, voterID uint, ballot string) error
	Retract(ctx context.Context, applicationID, voterID uint) (bool, error)
	Tally(applicationID uint) (positive, negative int, err error)
	GetByApplicationAndVoter(applicationID, voterID uint) (*models.Vote, error)
}

// Evaluator re-evaluates an application after the ledger changes, to
// catch the everyone-eligible-has-voted early closure.
type Evaluator interface {
	Evaluate(ctx context.Context, applicationID uint) (*models.Application, bool, error)
}

// Service handles vote casting and tallying.
type Service struct {
	voteRepo  VoteRepository
	evaluator Evaluator
	cache     cache.Cache
	cacheTTL  time.Duration
	log       *logger.Logger
}

// NewService creates a new voting service.
func NewService(
	voteRepo *repository.VoteRepository,
	evaluator Evaluator,
	c cache.Cache,
	cacheTTL time.Duration,
	log *logger.Logger,
) *Service {
	return &Service{
		voteRepo:  voteRepo,
		evaluator: evaluator,
		cache:     c,
		cacheTTL:  cacheTTL,
		log:       log,
	}
}

// NewServiceWithInterfaces creates a new voting service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	voteRepo VoteRepository,
	evaluator Evaluator,
	c cache.Cache,
	cacheTTL time.Duration,
	log *logger.Logger,
) *Service {
	return &Service{
		voteRepo:  voteRepo,
		evaluator: evaluator,
		cache:     c,
		cacheTTL:  cacheTTL,
		log:       log,
	}
}

// CastVote records one ballot for the voter on the application. Duplicate
// and ineligibility outcomes come back as the repository's typed errors.
// On success the cached tally is invalidated in the same call, and the
// application is re-evaluated eagerly so full participation closes voting
// without waiting for the sweep.
func (s *Service) CastVote(ctx context.Context, applicationID, voterID uint, ballot string) error {
	err := s.voteRepo.Cast(ctx, applicationID, voterID, ballot)
	if err != nil {
		prommetrics.RecordVoteRejected(rejectionReason(err))
		return err
	}

	prommetrics.RecordVoteCast(ballot)
	s.invalidate(ctx, applicationID, voterID)

	s.log.Info().
		Uint("application_id", applicationID).
		Uint("voter_id", voterID).
		Str("ballot", ballot).
		Msg("Vote cast")

	if s.evaluator != nil {
		if _, _, evalErr := s.evaluator.Evaluate(ctx, applicationID); evalErr != nil {
			// Evaluation failures never undo an accepted vote; the
			// periodic sweep picks the application up again.
			s.log.Error().
				Err(evalErr).
				Uint("application_id", applicationID).
				Msg("Post-vote evaluation failed")
		}
	}
	return nil
}

// RetractVote removes the voter's ballot from an open application.
func (s *Service) RetractVote(ctx context.Context, applicationID, voterID uint) (bool, error) {
	removed, err := s.voteRepo.Retract(ctx, applicationID, voterID)
	if err != nil {
		return false, err
	}
	if removed {
		prommetrics.RecordVoteRetracted()
		s.invalidate(ctx, applicationID, voterID)
		s.log.Info().
			Uint("application_id", applicationID).
			Uint("voter_id", voterID).
			Msg("Vote retracted")
	}
	return removed, nil
}

// Tally returns the vote counts for an application, served from the
// cache when fresh and recomputed from the ledger otherwise.
func (s *Service) Tally(ctx context.Context, applicationID uint) (positive, negative int, err error) {
	key := cache.TallyKey(applicationID)
	if s.cache != nil {
		if val, cacheErr := s.cache.Get(ctx, key); cacheErr == nil && val != "" {
			if p, n, ok := parseTally(val); ok {
				return p, n, nil
			}
		}
	}

	positive, negative, err = s.voteRepo.Tally(applicationID)
	if err != nil {
		return 0, 0, err
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, fmt.Sprintf("%d:%d", positive, negative), s.cacheTTL)
	}
	return positive, negative, nil
}

// HasVoted reports whether the voter has a ballot on the application, and
// which one. A cache hit answers positively; a miss always falls back to
// the ledger, absence in the cache is never treated as "no vote".
func (s *Service) HasVoted(ctx context.Context, applicationID, voterID uint) (bool, string, error) {
	key := cache.VoteKey(applicationID, voterID)
	if s.cache != nil {
		if val, err := s.cache.Get(ctx, key); err == nil && val != "" {
			return true, val, nil
		}
	}

	vote, err := s.voteRepo.GetByApplicationAndVoter(applicationID, voterID)
	if err != nil {
		return false, "", err
	}
	if vote == nil {
		return false, "", nil
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, vote.Ballot, s.cacheTTL)
	}
	return true, vote.Ballot, nil
}

// invalidate drops the cache entries touched by a ledger write.
func (s *Service) invalidate(ctx context.Context, applicationID, voterID uint) {
	if s.cache == nil {
		return
	}
	err := s.cache.Del(ctx, cache.TallyKey(applicationID), cache.VoteKey(applicationID, voterID))
	if err != nil {
		s.log.Warn().
			Err(err).
			Uint("application_id", applicationID).
			Msg("Failed to invalidate vote cache")
	}
}

// parseTally decodes a "positive:negative" cache value.
func parseTally(val string) (positive, negative int, ok bool) {
	p, n, found := strings.Cut(val, ":")
	if !found {
		return 0, 0, false
	}
	positive, err1 := strconv.Atoi(p)
	negative, err2 := strconv.Atoi(n)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return positive, negative, true
}

// rejectionReason maps a typed cast error to a metrics label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, repository.ErrApplicationNotFound):
		return "application_not_found"
	case errors.Is(err, repository.ErrApplicationNotOpen):
		return "application_not_open"
	case errors.Is(err, repository.ErrDuplicateVote):
		return "duplicate_vote"
	case errors.Is(err, repository.ErrVoterIneligible):
		return "voter_ineligible"
	default:
		return "store_error"
	}
}
