package corpus

import (
	"math"
	"math/rand"
)

// normal draws N(mu, sigma).
func normal(r *rand.Rand, mu, sigma float64) float64 {
	return mu + sigma*r.NormFloat64()
}

// exponential draws with the given mean.
func exponential(r *rand.Rand, scale float64) float64 {
	return scale * r.ExpFloat64()
}

// logNormal draws exp(N(mu, sigma)).
func logNormal(r *rand.Rand, mu, sigma float64) float64 {
	return math.Exp(normal(r, mu, sigma))
}

// gamma draws Gamma(shape, 1) with the Marsaglia-Tsang squeeze, boosting
// shapes below one through the power transform.
func gamma(r *rand.Rand, shape float64) float64 {
	if shape < 1 {
		return gamma(r, shape+1) * math.Pow(r.Float64(), 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := r.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := r.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// beta draws Beta(a, b) from two gamma variates.
func beta(r *rand.Rand, a, b float64) float64 {
	x := gamma(r, a)
	y := gamma(r, b)
	return x / (x + y)
}

// poisson counts unit-rate arrivals before lambda. Cost grows with lambda;
// corpus draws stay near 150-200.
func poisson(r *rand.Rand, lambda float64) int64 {
	var k int64
	var sum float64
	for {
		sum += r.ExpFloat64()
		if sum >= lambda {
			return k
		}
		k++
	}
}

// bernoulli returns 1 with probability p.
func bernoulli(r *rand.Rand, p float64) int {
	if r.Float64() < p {
		return 1
	}
	return 0
}

// choice picks uniformly from vals.
func choice(r *rand.Rand, vals []int) int {
	return vals[r.Intn(len(vals))]
}

// clip bounds v to [lo, hi].
func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
