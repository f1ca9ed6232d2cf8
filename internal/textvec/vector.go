package textvec

import "math"

// Vector is a sparse term-frequency vector. A missing key counts as zero.
// Vectors are never mutated after Vectorize returns them.
type Vector map[string]int

// Vectorize tokenizes text and counts occurrences per distinct token.
func Vectorize(text string) Vector {
	tokens := Tokenize(text)
	v := make(Vector, len(tokens))
	for _, t := range tokens {
		v[t]++
	}
	return v
}

// Magnitude returns the Euclidean norm of v.
func (v Vector) Magnitude() float64 {
	sum := 0
	for _, c := range v {
		sum += c * c
	}
	return math.Sqrt(float64(sum))
}

// Dot returns the sum of count products over keys present in both vectors.
func (v Vector) Dot(o Vector) float64 {
	a, b := v, o
	if len(b) < len(a) {
		a, b = b, a
	}
	sum := 0
	for k, c := range a {
		if d, ok := b[k]; ok {
			sum += c * d
		}
	}
	return float64(sum)
}

// Cosine returns the cosine similarity of a and b, or 0 when either is empty.
func Cosine(a, b Vector) float64 {
	magA, magB := a.Magnitude(), b.Magnitude()
	if magA == 0 || magB == 0 {
		return 0
	}
	return a.Dot(b) / (magA * magB)
}
