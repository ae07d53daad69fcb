package kelly

import (
	"fmt"
	"math"
)

var goldenMean = 0.5 * (3 - math.Sqrt(5))

// boundedMinimize minimises fn over [a, b] with Brent's method: parabolic
// interpolation where it makes progress, golden-section steps otherwise.
// It stops once the bracket is within xtol of the current best point or
// after maxEval evaluations, the latter reported as ErrNonconvergence.
func boundedMinimize(fn func(float64) float64, a, b, xtol float64, maxEval int) (float64, error) {
	if a > b {
		return 0, fmt.Errorf("kelly: empty bracket [%v, %v]", a, b)
	}
	if a == b {
		return a, nil
	}

	sqrtEps := math.Sqrt(2.2e-16)

	fulc := a + goldenMean*(b-a)
	nfc, xf := fulc, fulc
	var rat, e float64

	fx := fn(xf)
	evals := 1
	fu := math.Inf(1)
	ffulc, fnfc := fx, fx

	xm := 0.5 * (a + b)
	tol1 := sqrtEps*math.Abs(xf) + xtol/3
	tol2 := 2 * tol1

	for math.Abs(xf-xm) > tol2-0.5*(b-a) {
		golden := true

		if math.Abs(e) > tol1 {
			golden = false
			r := (xf - nfc) * (fx - ffulc)
			q := (xf - fulc) * (fx - fnfc)
			p := (xf-fulc)*q - (xf-nfc)*r
			q = 2 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			r = e
			e = rat

			if math.Abs(p) < math.Abs(0.5*q*r) && p > q*(a-xf) && p < q*(b-xf) {
				rat = p / q
				x := xf + rat
				if x-a < tol2 || b-x < tol2 {
					rat = tol1 * signOrOne(xm-xf)
				}
			} else {
				golden = true
			}
		}

		if golden {
			if xf >= xm {
				e = a - xf
			} else {
				e = b - xf
			}
			rat = goldenMean * e
		}

		x := xf + signOrOne(rat)*math.Max(math.Abs(rat), tol1)
		fu = fn(x)
		evals++

		if fu <= fx {
			if x >= xf {
				a = xf
			} else {
				b = xf
			}
			fulc, ffulc = nfc, fnfc
			nfc, fnfc = xf, fx
			xf, fx = x, fu
		} else {
			if x < xf {
				a = x
			} else {
				b = x
			}
			if fu <= fnfc || nfc == xf {
				fulc, ffulc = nfc, fnfc
				nfc, fnfc = x, fu
			} else if fu <= ffulc || fulc == xf || fulc == nfc {
				fulc, ffulc = x, fu
			}
		}

		xm = 0.5 * (a + b)
		tol1 = sqrtEps*math.Abs(xf) + xtol/3
		tol2 = 2 * tol1

		if evals >= maxEval {
			return xf, fmt.Errorf("%w after %d evaluations (x=%v)", ErrNonconvergence, evals, xf)
		}
	}

	if math.IsNaN(xf) || math.IsNaN(fx) {
		return xf, fmt.Errorf("%w: NaN objective at x=%v", ErrNonconvergence, xf)
	}
	return xf, nil
}

// signOrOne is sign(v) with zero mapped to +1.
func signOrOne(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
