package planner

import "testing"

func TestSelectStrategy_FileBasedWins(t *testing.T) {
	result := SelectStrategy("Rename files across every module and package, file by file")
	if result.Strategy != FileBased {
		t.Errorf("strategy = %v, want file-based; reasoning=%q", result.Strategy, result.Reasoning)
	}
}

func TestSelectStrategy_RiskBasedWins(t *testing.T) {
	result := SelectStrategy("Security audit: find vulnerability and compliance risk in critical paths")
	if result.Strategy != RiskBased {
		t.Errorf("strategy = %v, want risk-based", result.Strategy)
	}
}

func TestSelectStrategy_NoMatchFallsBackToFeatureBased(t *testing.T) {
	result := SelectStrategy("zzz qqq xyz")
	if result.Strategy != FeatureBased {
		t.Errorf("strategy = %v, want feature-based fallback", result.Strategy)
	}
	if result.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", result.Confidence)
	}
}

func TestSelectStrategy_ConfidenceCappedAt095(t *testing.T) {
	result := SelectStrategy("research investigate explore spike prototype unknown feasibility evaluate options")
	if result.Confidence > 0.95 {
		t.Errorf("confidence = %v, want <= 0.95", result.Confidence)
	}
	if result.Strategy != ResearchBased {
		t.Errorf("strategy = %v, want research-based", result.Strategy)
	}
}
