package antiban

// riskPercentage computes how exhausted the account's hourly allowances
// are, plus a flat penalty per error this hour. Clamped to [0,100].
func (p *Policy) riskPercentage(s *SessionState) float64 {
	usage := ratio(s.RequestsThisHour, p.MaxRequestsPerHour)
	if r := ratio(s.SearchesThisHour, p.MaxSearchesPerHour); r > usage {
		usage = r
	}
	if r := ratio(s.PurchasesThisHr, p.MaxPurchasesPerHour); r > usage {
		usage = r
	}

	pct := usage*100 + float64(s.ErrorsThisHour)*5
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

// riskLevelFor buckets a percentage by the configured thresholds
func (p *Policy) riskLevelFor(pct float64) RiskLevel {
	switch {
	case pct >= p.CriticalRiskThreshold:
		return RiskCritical
	case pct >= p.HighRiskThreshold:
		return RiskHigh
	case pct >= p.MediumRiskThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// recomputeRisk refreshes the session's stored risk level from current usage
func (p *Policy) recomputeRisk(s *SessionState) {
	s.RiskLevel = p.riskLevelFor(p.riskPercentage(s))
}

func ratio(used, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(used) / float64(limit)
}
