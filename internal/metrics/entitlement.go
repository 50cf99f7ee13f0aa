package metrics

// AdmissionAllowed records an admitted request
func AdmissionAllowed(plan string) {
	AdmissionsTotal.WithLabelValues(plan, "allowed").Inc()
}

// AdmissionDenied records a request rejected by a gate
func AdmissionDenied(plan, reason string) {
	AdmissionsTotal.WithLabelValues(plan, "denied").Inc()
	AdmissionDenialsTotal.WithLabelValues(reason).Inc()
}

// AdmissionFailed records an evaluation that failed closed
func AdmissionFailed() {
	AdmissionsTotal.WithLabelValues("unknown", "error").Inc()
}

// TrialStarted records a trial start
func TrialStarted() {
	TrialsStartedTotal.Inc()
}

// PlanDowngraded records a move back to the free plan
func PlanDowngraded(cause string) {
	PlanDowngradesTotal.WithLabelValues(cause).Inc()
}

// PlanChanged records an explicit plan assignment
func PlanChanged(plan string) {
	PlanChangesTotal.WithLabelValues(plan).Inc()
}
