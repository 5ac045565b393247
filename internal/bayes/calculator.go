// Package bayes computes posterior disease probabilities with Bayes'
// theorem. All functions are pure; out-of-range inputs are reported as
// errors, never clamped.
package bayes

import (
	"errors"
	"fmt"
	"strings"
)

// Test result values accepted by PosteriorForTest.
const (
	TestPositive = "positive"
	TestNegative = "negative"
)

// ErrDivisionByZero signals inputs yielding a zero marginal probability.
var ErrDivisionByZero = errors.New("invalid inputs caused division by zero")

// Posterior computes P(disease | positive test):
//
//	(sensitivity * prior) / (sensitivity*prior + falsePositive*(1-prior))
func Posterior(prior, sensitivity, falsePositive float64) (float64, error) {
	if err := checkUnit("prior", prior); err != nil {
		return 0, err
	}
	if err := checkUnit("sensitivity", sensitivity); err != nil {
		return 0, err
	}
	if err := checkUnit("false positive rate", falsePositive); err != nil {
		return 0, err
	}

	marginal := sensitivity*prior + falsePositive*(1-prior)
	if marginal == 0 {
		return 0, ErrDivisionByZero
	}
	return sensitivity * prior / marginal, nil
}

// PosteriorForTest computes the posterior for either test outcome using
// sensitivity and the false positive rate (1 - specificity).
func PosteriorForTest(prior, sensitivity, falsePositive float64, testResult string) (float64, error) {
	if err := checkUnit("prior", prior); err != nil {
		return 0, err
	}
	if err := checkUnit("sensitivity", sensitivity); err != nil {
		return 0, err
	}
	if err := checkUnit("false positive rate", falsePositive); err != nil {
		return 0, err
	}

	specificity := 1 - falsePositive

	var numerator, marginal float64
	switch strings.ToLower(testResult) {
	case TestPositive:
		numerator = sensitivity * prior
		marginal = numerator + falsePositive*(1-prior)
	case TestNegative:
		numerator = (1 - sensitivity) * prior
		marginal = numerator + specificity*(1-prior)
	default:
		return 0, fmt.Errorf(`testResult must be either %q or %q, got %q`, TestPositive, TestNegative, testResult)
	}

	if marginal == 0 {
		return 0, ErrDivisionByZero
	}
	return numerator / marginal, nil
}

// PosteriorForSymptoms treats symptom overlap against a disease's known
// symptom list as the test likelihood. matched of known symptoms present
// scales sensitivity; zero overlap degrades to the false positive rate.
func PosteriorForSymptoms(prior, sensitivity, falsePositive float64, matched, known int) (float64, error) {
	if err := checkUnit("prior", prior); err != nil {
		return 0, err
	}
	if err := checkUnit("sensitivity", sensitivity); err != nil {
		return 0, err
	}
	if err := checkUnit("false positive rate", falsePositive); err != nil {
		return 0, err
	}
	if known <= 0 {
		return 0, errors.New("disease has no known symptoms")
	}
	if matched < 0 || matched > known {
		return 0, fmt.Errorf("matched symptoms out of range: %d of %d", matched, known)
	}

	overlap := float64(matched) / float64(known)
	likelihood := falsePositive + (sensitivity-falsePositive)*overlap

	marginal := likelihood*prior + falsePositive*(1-prior)
	if marginal == 0 {
		return 0, ErrDivisionByZero
	}
	return likelihood * prior / marginal, nil
}

func checkUnit(name string, value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %g", name, value)
	}
	return nil
}
