package decision

import (
	"math"

	"github.com/frekv/gatekeeper/internal/models"
)

// Decision reasons recorded with the terminal status.
const (
	ReasonApproved                  = "approval threshold met"
	ReasonRejected                  = "rejection threshold met"
	ReasonInsufficientParticipation = "insufficient participation"
	ReasonNoClearMajority           = "no clear majority"
	ReasonAdminOverride             = "administrative override"
)

// Outcome is the result of evaluating a closed application.
type Outcome struct {
	Status string
	Reason string
}

// Decide evaluates a closed application. It is a pure function of the
// tally, the eligible-voter pool and the policy settings; the eager
// post-vote path and the lazy sweep both call it, so the trigger cannot
// change the result.
//
// Small communities get a tightened participation requirement (capped at
// 60%) but a floor of a single vote instead of min_votes, so the quorum
// is neither unreachable nor trivial. Zero votes always expire: the
// percentages are defined as zero then, and zero is never approval.
func Decide(positive, negative, eligibleVoters int, s *models.SystemSettings) Outcome {
	totalVotes := positive + negative

	isSmallCommunity := eligibleVoters <= s.SmallCommunityThreshold
	requiredParticipation := s.ParticipationPercent
	if isSmallCommunity {
		requiredParticipation = math.Min(60, s.ParticipationPercent*1.5)
	}

	requiredVotes := int(math.Ceil(float64(eligibleVoters) * requiredParticipation / 100))
	floor := s.MinVotes
	if isSmallCommunity {
		floor = 1
	}
	if requiredVotes < floor {
		requiredVotes = floor
	}

	sufficientVotes := totalVotes >= requiredVotes
	allVoted := totalVotes >= eligibleVoters

	if !sufficientVotes && !allVoted {
		return Outcome{Status: models.AppStatusExpired, Reason: ReasonInsufficientParticipation}
	}

	var positivePercent, negativePercent float64
	if totalVotes > 0 {
		positivePercent = float64(positive) / float64(totalVotes) * 100
		negativePercent = float64(negative) / float64(totalVotes) * 100
	}

	switch {
	case positivePercent >= s.ApprovalThresholdPercent:
		return Outcome{Status: models.AppStatusApproved, Reason: ReasonApproved}
	case negativePercent >= s.RejectionThresholdPercent:
		return Outcome{Status: models.AppStatusRejected, Reason: ReasonRejected}
	default:
		return Outcome{Status: models.AppStatusExpired, Reason: ReasonNoClearMajority}
	}
}
