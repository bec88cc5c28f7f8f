// Package progress derives will completion state from section contents.
// The derivation is pure: identical sections always yield identical output,
// and nothing in here touches storage.
package progress

import (
	"math"

	"weekendwill/internal/domain"
)

// Required sections. Completing all of them brings a will to 100%.
const (
	StepPersonalInfo = "personal-info"
	StepFamily       = "family"
	StepExecutors    = "executors"
	StepAssets       = "assets"
	StepDistribution = "distribution"
)

// Required lists the sections counted toward the completion percentage, in
// interview order.
var Required = []string{StepPersonalInfo, StepFamily, StepAssets, StepDistribution, StepExecutors}

// Completed returns the required section keys deemed complete for the given
// contents, in Required order.
func Completed(s domain.Sections) []string {
	done := make([]string, 0, len(Required))
	for _, key := range Required {
		if sectionComplete(key, s) {
			done = append(done, key)
		}
	}
	return done
}

func sectionComplete(key string, s domain.Sections) bool {
	switch key {
	case StepPersonalInfo:
		return s.Testator != nil
	case StepFamily:
		return len(s.Children) > 0 || s.Spouse != nil
	case StepExecutors:
		return len(s.Executors) > 0
	case StepAssets:
		return len(s.RealProperty) > 0 || len(s.PersonalProperty) > 0
	case StepDistribution:
		return s.ResidualEstate != nil && len(s.ResidualEstate.Beneficiaries) > 0
	}
	return false
}

// Compute builds the derived progress record. currentSection is carried
// through untouched so the interview can track where the user is.
func Compute(s domain.Sections, currentSection string) domain.Progress {
	done := Completed(s)
	return domain.Progress{
		CompletedSections: done,
		CurrentSection:    currentSection,
		PercentComplete:   int(math.Round(float64(len(done)) / float64(len(Required)) * 100)),
	}
}
