package analyst

// Fallback produces a deterministic verdict from the quantitative base
// score alone. It is used when the remote analyst replies with something
// unusable, so the pipeline still completes with a conservative result.
func Fallback(req Request) *Result {
	verdict := "low risk"
	switch {
	case req.BaseRiskScore >= 75:
		verdict = "critical risk"
	case req.BaseRiskScore >= 50:
		verdict = "high risk"
	case req.BaseRiskScore >= 25:
		verdict = "moderate risk"
	}

	return &Result{
		FinalRiskScore: req.BaseRiskScore,
		Verdict:        verdict,
		LikelyScenario: "Uncertain",
		ShortComment:   "Automated fallback verdict. Monitor closely.",
		Degraded:       true,
	}
}
