package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus is log(1 + e^z) without overflow.
func softplus(z float64) float64 {
	return math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
}

// penalizedLogLik is the objective IRLS maximizes. Column 0 of x is the
// intercept and is not penalized.
func penalizedLogLik(x *mat.Dense, y []float64, beta *mat.VecDense, lambda float64, eta *mat.VecDense) float64 {
	eta.MulVec(x, beta)
	ll := 0.0
	for i, yi := range y {
		z := eta.AtVec(i)
		ll += yi*z - softplus(z)
	}
	penalty := 0.0
	for j := 1; j < beta.Len(); j++ {
		b := beta.AtVec(j)
		penalty += b * b
	}
	return ll - 0.5*lambda*penalty
}

// fitLogistic runs Newton-Raphson (IRLS) with step halving on an L2
// penalized logistic likelihood and returns the coefficients, intercept
// first.
func fitLogistic(x *mat.Dense, y []float64, cfg FitConfig) ([]float64, error) {
	n, d := x.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("design has %d rows but %d targets", n, len(y))
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = DefaultFitConfig.MaxIter
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultFitConfig.Tolerance
	}

	beta := mat.NewVecDense(d, nil)
	candidate := mat.NewVecDense(d, nil)
	step := mat.NewVecDense(d, nil)
	grad := mat.NewVecDense(d, nil)
	resid := mat.NewVecDense(n, nil)
	eta := mat.NewVecDense(n, nil)
	weighted := mat.NewDense(n, d, nil)
	hessian := mat.NewDense(d, d, nil)

	obj := penalizedLogLik(x, y, beta, cfg.Lambda, eta)
	for iter := 0; iter < cfg.MaxIter; iter++ {
		eta.MulVec(x, beta)
		for i := 0; i < n; i++ {
			p := sigmoid(eta.AtVec(i))
			resid.SetVec(i, y[i]-p)
			w := math.Max(p*(1-p), 1e-10)
			src := x.RawRowView(i)
			dst := weighted.RawRowView(i)
			for j, v := range src {
				dst[j] = v * w
			}
		}

		grad.MulVec(x.T(), resid)
		hessian.Mul(x.T(), weighted)
		hessian.Set(0, 0, hessian.At(0, 0)+1e-10)
		for j := 1; j < d; j++ {
			grad.SetVec(j, grad.AtVec(j)-cfg.Lambda*beta.AtVec(j))
			hessian.Set(j, j, hessian.At(j, j)+cfg.Lambda)
		}

		var chol mat.Cholesky
		if chol.Factorize(mat.NewSymDense(d, hessian.RawMatrix().Data)) {
			if err := chol.SolveVecTo(step, grad); err != nil {
				return nil, fmt.Errorf("solve newton step: %w", err)
			}
		} else if err := step.SolveVec(hessian, grad); err != nil {
			return nil, fmt.Errorf("solve newton step: %w", err)
		}

		scale := 1.0
		next := obj
		for k := 0; k < 30; k++ {
			candidate.AddScaledVec(beta, scale, step)
			next = penalizedLogLik(x, y, candidate, cfg.Lambda, eta)
			if next >= obj-1e-12*math.Abs(obj) {
				break
			}
			scale /= 2
		}
		beta.CopyVec(candidate)

		maxStep := 0.0
		for j := 0; j < d; j++ {
			maxStep = math.Max(maxStep, math.Abs(scale*step.AtVec(j)))
		}
		gain := next - obj
		obj = next
		if math.IsNaN(obj) {
			return nil, errors.New("logistic fit diverged")
		}
		if maxStep < cfg.Tolerance || math.Abs(gain) < cfg.Tolerance*(math.Abs(obj)+cfg.Tolerance) {
			break
		}
	}

	out := make([]float64, d)
	for j := range out {
		out[j] = beta.AtVec(j)
	}
	return out, nil
}
