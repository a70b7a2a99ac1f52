// Package reputation folds scan observations into a 0-100 score and a
// verdict.
//
// Four components earn points and risk signals take them away. The
// death component dominates on purpose: the fraction of a deployer's
// tokens that died is the strongest predictor of the next launch's
// fate. Raw death rates are unstable at low sample sizes, so the rate
// is shrunk toward a 0.5 prior with five pseudo-counts before scoring;
// one dead token does not condemn a wallet, fifty do.
package reputation

import (
	"fmt"
	"math"

	"github.com/rawblock/daybreakscan/pkg/models"
)

const (
	VerdictClean        = "CLEAN"
	VerdictSuspicious   = "SUSPICIOUS"
	VerdictSerialRugger = "SERIAL_RUGGER"
)

const (
	priorPseudoCount = 5
	priorDeathRate   = 0.5

	maxDeathPoints    = 40
	maxTokenPoints    = 20
	maxLifespanPoints = 20
	maxClusterPoints  = 20

	// lowConfidenceCap keeps thin evidence out of CLEAN territory: with
	// fewer than minVerified verified tokens the score cannot clear 59.
	lowConfidenceCap = 59
	minVerified      = 3

	// serialBayesThreshold triggers the SERIAL_RUGGER override
	// regardless of how the point total came out.
	serialBayesThreshold = 0.8
	serialMinTokens      = 3
)

// Inputs are the observations one scan produced.
type Inputs struct {
	DeathRate       float64
	RugRate         float64
	TokenCount      int
	VerifiedCount   int
	AvgLifespanDays float64
	ClusterSize     int
	DeployVelocity  float64
	Burner          bool
	BurnerPenalty   int
	Risks           *models.RiskSignals
}

// Score computes the final reputation with a full breakdown.
func Score(in Inputs) *models.Reputation {
	bayes := bayesRate(in.DeathRate, in.VerifiedCount)

	death := (1 - bayes) * maxDeathPoints
	tokens := tokenCountComponent(in.TokenCount, in.RugRate)
	lifespan := math.Min(maxLifespanPoints, in.AvgLifespanDays*0.5)
	cluster := math.Max(0, maxClusterPoints-math.Min(maxClusterPoints, float64(in.ClusterSize)*2))

	deductions, details := riskDeductions(in)

	raw := death + tokens + lifespan + cluster + float64(deductions)
	score := clampScore(int(math.Round(raw)))

	rep := &models.Reputation{
		Score:          score,
		BayesDeathRate: bayes,
		Breakdown: models.ReputationBreakdown{
			DeathComponent:      death,
			TokenCountComponent: tokens,
			LifespanComponent:   lifespan,
			ClusterComponent:    cluster,
			RiskDeductions:      deductions,
			Details:             details,
		},
	}

	switch {
	case in.VerifiedCount < minVerified:
		if rep.Score > lowConfidenceCap {
			rep.Score = lowConfidenceCap
		}
		rep.Verdict = VerdictSuspicious
		rep.Breakdown.Details = append(rep.Breakdown.Details,
			fmt.Sprintf("only %d verified tokens; confidence capped", in.VerifiedCount))
	case bayes > serialBayesThreshold && in.TokenCount >= serialMinTokens:
		rep.Verdict = VerdictSerialRugger
		rep.Breakdown.Details = append(rep.Breakdown.Details,
			fmt.Sprintf("estimated death rate %.0f%% across %d tokens", bayes*100, in.TokenCount))
	case rep.Score < 30:
		rep.Verdict = VerdictSerialRugger
	case rep.Score < 60:
		rep.Verdict = VerdictSuspicious
	default:
		rep.Verdict = VerdictClean
	}
	return rep
}

// bayesRate shrinks the observed death rate toward the prior.
func bayesRate(deathRate float64, verified int) float64 {
	v := float64(verified)
	return (deathRate*v + priorDeathRate*priorPseudoCount) / (v + priorPseudoCount)
}

// tokenCountComponent awards fewer points the more tokens a wallet has
// launched, but only to the extent the launches actually rug: a
// prolific deployer with zero rugs keeps the full twenty.
func tokenCountComponent(count int, rugRate float64) float64 {
	n := math.Max(1, float64(count))
	base := math.Max(0, maxTokenPoints*(1-math.Log10(n)/3))
	lost := maxTokenPoints - base
	scale := math.Min(1, rugRate/0.5)
	return maxTokenPoints - lost*scale
}

func riskDeductions(in Inputs) (int, []string) {
	total := 0
	details := make([]string, 0, 8)
	apply := func(points int, note string) {
		total -= points
		details = append(details, fmt.Sprintf("%s (-%d)", note, points))
	}

	if r := in.Risks; r != nil {
		if r.MintAuthority != nil {
			apply(10, "mint authority still active")
		}
		if r.FreezeAuthority != nil {
			apply(5, "freeze authority still active")
		}
		if r.TopHolderPct != nil {
			switch pct := *r.TopHolderPct; {
			case pct > 80:
				apply(5, fmt.Sprintf("top holder owns %.1f%% of supply", pct))
			case pct > 60:
				apply(3, fmt.Sprintf("top holder owns %.1f%% of supply", pct))
			case pct > 40:
				apply(2, fmt.Sprintf("top holder owns %.1f%% of supply", pct))
			}
		}
		if r.BundleDetected != nil && *r.BundleDetected {
			apply(5, "bundled buying at launch")
		}
		if r.DeployerHoldingsPct != nil {
			switch pct := *r.DeployerHoldingsPct; {
			case pct > 50:
				apply(10, fmt.Sprintf("deployer still holds %.1f%% of supply", pct))
			case pct > 30:
				apply(5, fmt.Sprintf("deployer still holds %.1f%% of supply", pct))
			case pct > 10:
				apply(3, fmt.Sprintf("deployer still holds %.1f%% of supply", pct))
			}
		}
	}

	switch v := in.DeployVelocity; {
	case v > 5:
		apply(10, fmt.Sprintf("deploy velocity %.1f tokens/day", v))
	case v > 2:
		apply(5, fmt.Sprintf("deploy velocity %.1f tokens/day", v))
	case v > 1:
		apply(3, fmt.Sprintf("deploy velocity %.1f tokens/day", v))
	}

	if in.Burner {
		penalty := in.BurnerPenalty
		if penalty <= 0 {
			penalty = 10
		}
		apply(penalty, "burner wallet funding pattern")
	}

	return total, details
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
