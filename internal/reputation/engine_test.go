package reputation

import (
	"math"
	"strings"
	"testing"

	"github.com/rawblock/daybreakscan/pkg/models"
)

func TestCleanSingleTokenDeployer(t *testing.T) {
	rep := Score(Inputs{
		DeathRate:       0,
		RugRate:         0,
		TokenCount:      1,
		VerifiedCount:   3,
		AvgLifespanDays: 40,
		ClusterSize:     0,
		DeployVelocity:  1,
	})

	if rep.Score != 88 {
		t.Errorf("Score = %d, want 88", rep.Score)
	}
	if rep.Verdict != VerdictClean {
		t.Errorf("Verdict = %s, want %s", rep.Verdict, VerdictClean)
	}
	if math.Abs(rep.BayesDeathRate-0.3125) > 0.001 {
		t.Errorf("BayesDeathRate = %f, want 0.3125", rep.BayesDeathRate)
	}

	b := rep.Breakdown
	if math.Abs(b.DeathComponent-27.5) > 0.001 {
		t.Errorf("DeathComponent = %f, want 27.5", b.DeathComponent)
	}
	if math.Abs(b.TokenCountComponent-20) > 0.001 {
		t.Errorf("TokenCountComponent = %f, want 20", b.TokenCountComponent)
	}
	if math.Abs(b.LifespanComponent-20) > 0.001 {
		t.Errorf("LifespanComponent = %f, want 20", b.LifespanComponent)
	}
	if math.Abs(b.ClusterComponent-20) > 0.001 {
		t.Errorf("ClusterComponent = %f, want 20", b.ClusterComponent)
	}
	if b.RiskDeductions != 0 {
		t.Errorf("RiskDeductions = %d, want 0", b.RiskDeductions)
	}
}

func TestLowConfidenceCapsScore(t *testing.T) {
	rep := Score(Inputs{
		DeathRate:       0,
		RugRate:         0,
		TokenCount:      1,
		VerifiedCount:   1,
		AvgLifespanDays: 40,
		DeployVelocity:  1,
	})

	if rep.Score != 59 {
		t.Errorf("Score = %d, want 59", rep.Score)
	}
	if rep.Verdict != VerdictSuspicious {
		t.Errorf("Verdict = %s, want %s", rep.Verdict, VerdictSuspicious)
	}
}

func TestSerialRuggerOverride(t *testing.T) {
	rep := Score(Inputs{
		DeathRate:       0.809,
		RugRate:         0.809,
		TokenCount:      194,
		VerifiedCount:   194,
		AvgLifespanDays: 2,
	})

	if rep.Verdict != VerdictSerialRugger {
		t.Errorf("Verdict = %s, want %s", rep.Verdict, VerdictSerialRugger)
	}
	if rep.BayesDeathRate <= 0.8 {
		t.Errorf("BayesDeathRate = %f, want > 0.8", rep.BayesDeathRate)
	}
}

func TestSerialRuggerByLowScore(t *testing.T) {
	// Bayes rate below the override threshold, but the point total
	// lands under 30 anyway.
	rep := Score(Inputs{
		DeathRate:     0.8,
		RugRate:       0.8,
		TokenCount:    100,
		VerifiedCount: 100,
		ClusterSize:   15,
	})

	if rep.BayesDeathRate > 0.8 {
		t.Fatalf("BayesDeathRate = %f, want <= 0.8 so the override stays out", rep.BayesDeathRate)
	}
	if rep.Score >= 30 {
		t.Errorf("Score = %d, want < 30", rep.Score)
	}
	if rep.Verdict != VerdictSerialRugger {
		t.Errorf("Verdict = %s, want %s", rep.Verdict, VerdictSerialRugger)
	}
}

func TestSuspiciousMidScore(t *testing.T) {
	rep := Score(Inputs{
		DeathRate:       0.5,
		RugRate:         0.5,
		TokenCount:      10,
		VerifiedCount:   10,
		AvgLifespanDays: 10,
		ClusterSize:     2,
	})

	if rep.Score < 30 || rep.Score >= 60 {
		t.Fatalf("Score = %d, want in [30, 60)", rep.Score)
	}
	if rep.Verdict != VerdictSuspicious {
		t.Errorf("Verdict = %s, want %s", rep.Verdict, VerdictSuspicious)
	}
}

func TestFreshWalletNeverClean(t *testing.T) {
	rep := Score(Inputs{VerifiedCount: 0})
	if rep.Verdict == VerdictClean {
		t.Errorf("fresh wallet got %s", VerdictClean)
	}
	if rep.Score > 59 {
		t.Errorf("Score = %d, want <= 59", rep.Score)
	}
}

func TestScoreStaysInBounds(t *testing.T) {
	active := "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	pct := 95.0
	bundled := true

	tests := []struct {
		name string
		in   Inputs
	}{
		{"all deductions", Inputs{
			DeathRate:      1,
			RugRate:        1,
			TokenCount:     500,
			VerifiedCount:  500,
			ClusterSize:    40,
			DeployVelocity: 20,
			Burner:         true,
			BurnerPenalty:  10,
			Risks: &models.RiskSignals{
				MintAuthority:       &active,
				FreezeAuthority:     &active,
				TopHolderPct:        &pct,
				DeployerHoldingsPct: &pct,
				BundleDetected:      &bundled,
			},
		}},
		{"best case", Inputs{
			DeathRate:       0,
			RugRate:         0,
			TokenCount:      1,
			VerifiedCount:   1000,
			AvgLifespanDays: 400,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := Score(tt.in)
			if rep.Score < 0 || rep.Score > 100 {
				t.Errorf("Score = %d, want within [0, 100]", rep.Score)
			}
		})
	}
}

func TestRiskDeductionsAccumulate(t *testing.T) {
	active := "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	topHolder := 85.0
	holdings := 60.0
	bundled := true

	rep := Score(Inputs{
		DeathRate:       0,
		RugRate:         0,
		TokenCount:      5,
		VerifiedCount:   5,
		AvgLifespanDays: 40,
		DeployVelocity:  6,
		Burner:          true,
		BurnerPenalty:   10,
		Risks: &models.RiskSignals{
			MintAuthority:       &active,
			FreezeAuthority:     &active,
			TopHolderPct:        &topHolder,
			DeployerHoldingsPct: &holdings,
			BundleDetected:      &bundled,
		},
	})

	// 10 + 5 + 5 + 5 + 10 + 10 + 10
	if rep.Breakdown.RiskDeductions != -55 {
		t.Errorf("RiskDeductions = %d, want -55", rep.Breakdown.RiskDeductions)
	}
	if len(rep.Breakdown.Details) != 7 {
		t.Errorf("Details = %d entries, want 7: %v", len(rep.Breakdown.Details), rep.Breakdown.Details)
	}
	for _, want := range []string{"mint authority", "freeze authority", "top holder", "bundled", "deployer still holds", "velocity", "burner"} {
		found := false
		for _, d := range rep.Breakdown.Details {
			if strings.Contains(d, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Details missing %q: %v", want, rep.Breakdown.Details)
		}
	}
}

func TestTokenCountComponent(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		rugRate float64
		want    float64
	}{
		{"single token no rugs", 1, 0, 20},
		{"many tokens no rugs", 1000, 0, 20},
		{"ten tokens full scale", 10, 0.5, 13.3333},
		{"ten tokens half scale", 10, 0.25, 16.6667},
		{"thousand tokens full scale", 1000, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenCountComponent(tt.count, tt.rugRate)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("tokenCountComponent(%d, %v) = %f, want %f", tt.count, tt.rugRate, got, tt.want)
			}
		})
	}
}

func TestVelocityBands(t *testing.T) {
	tests := []struct {
		velocity float64
		want     int
	}{
		{0.5, 0},
		{1, 0},
		{1.5, -3},
		{2.5, -5},
		{6, -10},
	}

	for _, tt := range tests {
		rep := Score(Inputs{
			TokenCount:     3,
			VerifiedCount:  3,
			DeployVelocity: tt.velocity,
		})
		if rep.Breakdown.RiskDeductions != tt.want {
			t.Errorf("velocity %v: deductions = %d, want %d", tt.velocity, rep.Breakdown.RiskDeductions, tt.want)
		}
	}
}

func TestBayesShrinkage(t *testing.T) {
	// Small samples pull hard toward the 0.5 prior, big ones barely.
	small := bayesRate(1, 1)
	big := bayesRate(1, 1000)
	if math.Abs(small-0.583333) > 0.001 {
		t.Errorf("bayesRate(1, 1) = %f, want 0.583333", small)
	}
	if big < 0.99 {
		t.Errorf("bayesRate(1, 1000) = %f, want near 1", big)
	}
}
