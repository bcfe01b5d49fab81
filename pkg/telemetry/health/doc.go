// Package health implements the liveness and readiness endpoints.
//
// Liveness always answers 200 while the process serves HTTP. Readiness runs
// the registered checks concurrently, each bounded by the checker timeout,
// and answers 503 until all of them pass. The proxy registers a check for
// the policy tree and for each database-backed component.
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("policy_tree", manager.Ready)
//	mux.Handle("/health", checker.LivenessHandler())
//	mux.Handle("/ready", checker.ReadinessHandler())
package health
