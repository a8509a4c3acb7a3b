package mlfilter

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

var errSingleClass = errors.New("training set holds a single class")

// Model is a fitted binary logistic regression.
type Model struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// Prob returns P(y=1 | x).
func (m *Model) Prob(x []float64) float64 {
	z := m.Intercept
	for i, w := range m.Weights {
		z += w * x[i]
	}
	return sigmoid(z)
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	ez := math.Exp(z)
	return ez / (1 + ez)
}

// balancedWeights gives each class total weight n/2, i.e. n / (2 * n_class) per sample.
func balancedWeights(y []float64) ([]float64, error) {
	pos := 0
	for _, v := range y {
		if v > 0.5 {
			pos++
		}
	}
	neg := len(y) - pos
	if pos == 0 || neg == 0 {
		return nil, errSingleClass
	}

	n := float64(len(y))
	wPos, wNeg := n/(2*float64(pos)), n/(2*float64(neg))
	w := make([]float64, len(y))
	for i, v := range y {
		if v > 0.5 {
			w[i] = wPos
		} else {
			w[i] = wNeg
		}
	}
	return w, nil
}

// fitLogistic minimises 0.5*|w|^2 + C * sum_i s_i * logloss_i with Newton steps.
// The intercept is not penalised. Steps are halved while the objective grows.
func fitLogistic(X [][]float64, y, s []float64, c float64, maxIter int) (*Model, error) {
	n := len(X)
	if n == 0 {
		return nil, errors.New("empty training set")
	}
	d := len(X[0])
	p := d + 1 // last coefficient is the intercept

	beta := make([]float64, p)
	linear := func(b, x []float64) float64 {
		z := b[d]
		for k := 0; k < d; k++ {
			z += b[k] * x[k]
		}
		return z
	}
	objective := func(b []float64) float64 {
		reg := 0.0
		for k := 0; k < d; k++ {
			reg += b[k] * b[k]
		}
		loss := 0.0
		for i := 0; i < n; i++ {
			z := linear(b, X[i])
			// log(1+exp(z)) - y*z, computed stably
			loss += s[i] * (softplus(z) - y[i]*z)
		}
		return 0.5*reg + c*loss
	}

	grad := mat.NewVecDense(p, nil)
	hess := mat.NewSymDense(p, nil)
	step := mat.NewVecDense(p, nil)
	current := objective(beta)

	for iter := 0; iter < maxIter; iter++ {
		for k := 0; k < p; k++ {
			grad.SetVec(k, 0)
			for l := k; l < p; l++ {
				hess.SetSym(k, l, 0)
			}
		}

		for i := 0; i < n; i++ {
			x := X[i]
			pi := sigmoid(linear(beta, x))
			r := c * s[i] * (pi - y[i])
			h := c * s[i] * pi * (1 - pi)
			for k := 0; k < p; k++ {
				xk := feature(x, k, d)
				grad.SetVec(k, grad.AtVec(k)+r*xk)
				for l := k; l < p; l++ {
					hess.SetSym(k, l, hess.At(k, l)+h*xk*feature(x, l, d))
				}
			}
		}
		for k := 0; k < d; k++ {
			grad.SetVec(k, grad.AtVec(k)+beta[k])
			hess.SetSym(k, k, hess.At(k, k)+1)
		}
		hess.SetSym(d, d, hess.At(d, d)+1e-10)

		var chol mat.Cholesky
		if ok := chol.Factorize(hess); !ok {
			return nil, errors.New("hessian is not positive definite")
		}
		if err := chol.SolveVecTo(step, grad); err != nil {
			return nil, err
		}

		t := 1.0
		next := make([]float64, p)
		improved := false
		for halvings := 0; halvings < 30; halvings++ {
			for k := 0; k < p; k++ {
				next[k] = beta[k] - t*step.AtVec(k)
			}
			if obj := objective(next); obj <= current {
				current = obj
				improved = true
				break
			}
			t /= 2
		}
		if !improved {
			break
		}

		maxStep := 0.0
		for k := 0; k < p; k++ {
			maxStep = math.Max(maxStep, math.Abs(next[k]-beta[k]))
		}
		copy(beta, next)
		if maxStep < 1e-8 {
			break
		}
	}

	return &Model{Weights: append([]float64(nil), beta[:d]...), Intercept: beta[d]}, nil
}

func feature(x []float64, k, d int) float64 {
	if k == d {
		return 1
	}
	return x[k]
}

func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
