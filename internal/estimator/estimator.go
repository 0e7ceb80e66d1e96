// Package estimator implements ability estimation from a set of
// administered items and binary responses: maximum-likelihood estimation
// with Newton-Raphson step-halving, falling back to expected-a-posteriori
// estimation when MLE cannot be trusted or fails to converge.
//
// Numeric pathologies never panic here — degenerate inputs degrade to
// EAP, and a fully degenerate EAP degrades to the standard-normal prior
// (theta=0, se=1), following the same "never fail hard, degrade and
// report" rule the teacher applies to malformed guardrail config.
package estimator

import (
	"math"

	"github.com/aptcat/engine/internal/irt"
	"github.com/aptcat/engine/pkg/models"
	"github.com/rs/zerolog/log"
)

// Method identifies which branch actually produced a Result.
type Method string

const (
	MethodMLE Method = "mle"
	MethodEAP Method = "eap"
)

// Result is the estimator's output for one dimension's session so far.
type Result struct {
	Theta     float64
	SE        float64
	Method    Method
	Converged bool
}

// Estimate applies the selection rule from spec.md §4.2: fewer than 3
// responses, or an all-identical response vector, goes straight to EAP;
// otherwise MLE is attempted and EAP is the fallback if it fails to
// converge.
func Estimate(items []irt.ItemParams, responses []int, cfg models.EstimatorConfig) Result {
	if len(items) != len(responses) {
		log.Warn().Int("items", len(items)).Int("responses", len(responses)).
			Msg("estimator: mismatched items/responses length, falling back to prior")
		return Result{Theta: 0, SE: 1, Method: MethodEAP, Converged: true}
	}

	if len(responses) == 0 {
		// No evidence at all: the posterior is the standard-normal prior.
		return Result{Theta: 0, SE: 1, Method: MethodEAP, Converged: true}
	}

	if len(responses) < 3 || allIdentical(responses) {
		return eap(items, responses, cfg)
	}

	if res, ok := mle(items, responses, cfg); ok {
		return res
	}

	log.Debug().Msg("estimator: MLE failed to converge, falling back to EAP")
	return eap(items, responses, cfg)
}

func allIdentical(responses []int) bool {
	if len(responses) == 0 {
		return true
	}
	first := responses[0]
	for _, r := range responses[1:] {
		if r != first {
			return false
		}
	}
	return true
}

// mle runs Newton-Raphson with step-halving on the log-likelihood. It
// returns ok=false when the iteration cap is hit without converging, or
// when the Hessian surrogate is degenerate (|h| < 1e-10) at any step.
func mle(items []irt.ItemParams, responses []int, cfg models.EstimatorConfig) (Result, bool) {
	theta := 0.0

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		var g, h float64
		for i, it := range items {
			p := irt.P(theta, it.Alpha, it.Beta, it.Gamma)
			pStar := irt.PStar(p, it.Gamma)
			g += it.Alpha * safeDiv(pStar, p) * (float64(responses[i]) - p)
			h -= irt.Information(theta, it.Alpha, it.Beta, it.Gamma)
		}

		if math.Abs(h) < 1e-10 {
			return Result{}, false
		}

		delta := -g / h
		llBefore := irt.LogLikelihood(theta, items, responses)

		accepted := theta
		found := false
		fraction := 1.0
		lastCandidate := theta
		for step := 0; step < 10; step++ { // h in {1, 1/2, ..., 2^-9}
			candidate := irt.Clamp(theta+fraction*delta, cfg.ThetaMin, cfg.ThetaMax)
			lastCandidate = candidate
			llAfter := irt.LogLikelihood(candidate, items, responses)
			if llAfter-llBefore >= cfg.StepHaltTol {
				accepted = candidate
				found = true
				break
			}
			fraction /= 2
		}
		if !found {
			// None of the halved steps improved; take the last halved step anyway.
			accepted = lastCandidate
		}

		moved := math.Abs(accepted - theta)
		theta = accepted

		if moved < cfg.Tolerance {
			itemParams := items
			total := irt.TotalInformation(theta, itemParams)
			return Result{
				Theta:     theta,
				SE:        irt.StandardError(total),
				Method:    MethodMLE,
				Converged: true,
			}, true
		}
	}

	return Result{}, false
}

func safeDiv(num, denom float64) float64 {
	if denom == 0 {
		return 0
	}
	return num / denom
}

// eap discretizes theta on a fixed grid over [ThetaMin, ThetaMax] under a
// standard-normal prior and returns the posterior mean/SE. It always
// reports Converged=true, and degrades to the prior (theta=0, se=1) if
// the posterior mass is zero.
func eap(items []irt.ItemParams, responses []int, cfg models.EstimatorConfig) Result {
	n := cfg.EAPGridPoints
	if n < 2 {
		n = 41
	}
	step := (cfg.ThetaMax - cfg.ThetaMin) / float64(n-1)

	var sumW, sumThetaW, sumTheta2W float64
	for i := 0; i < n; i++ {
		theta := cfg.ThetaMin + float64(i)*step
		likelihood := 1.0
		for j, it := range items {
			p := irt.ClampProbability(irt.P(theta, it.Alpha, it.Beta, it.Gamma))
			if responses[j] == 1 {
				likelihood *= p
			} else {
				likelihood *= 1 - p
			}
		}
		prior := standardNormalPDF(theta)
		w := likelihood * prior * step

		sumW += w
		sumThetaW += theta * w
		sumTheta2W += theta * theta * w
	}

	if sumW <= 0 {
		return Result{Theta: 0, SE: 1, Method: MethodEAP, Converged: true}
	}

	mean := sumThetaW / sumW
	variance := sumTheta2W/sumW - mean*mean
	if variance < 0 {
		variance = 0
	}

	return Result{
		Theta:     irt.Clamp(mean, cfg.ThetaMin, cfg.ThetaMax),
		SE:        math.Sqrt(variance),
		Method:    MethodEAP,
		Converged: true,
	}
}

func standardNormalPDF(x float64) float64 {
	const invSqrt2Pi = 0.3989422804014327
	return invSqrt2Pi * math.Exp(-0.5*x*x)
}
