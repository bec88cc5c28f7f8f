// Package interview walks a user through authoring a will step by step.
// Each step accepts a fixed set of section payloads; persistence and
// validation stay in the engine, so a failed submit leaves the stored will
// untouched and the user on the same step.
package interview

import (
	"context"
	"encoding/json"
	"fmt"

	"weekendwill/internal/domain"
	"weekendwill/internal/engine"
	"weekendwill/internal/progress"
)

const (
	StepPersonalInfo = "personal-info"
	StepFamily       = "family"
	StepAssets       = "assets"
	StepDistribution = "distribution"
	StepExecutors    = "executors"
	StepReview       = "review"
)

// Order is the canonical step sequence.
var Order = []string{StepPersonalInfo, StepFamily, StepAssets, StepDistribution, StepExecutors, StepReview}

// stepSections maps a step to the section keys it may submit.
var stepSections = map[string][]string{
	StepPersonalInfo: {domain.SectionTestator},
	StepFamily:       {domain.SectionSpouse, domain.SectionChildren, domain.SectionGuardians},
	StepAssets:       {domain.SectionRealProperty, domain.SectionPersonalProperty, domain.SectionSpecificGifts},
	StepDistribution: {domain.SectionResidualEstate, domain.SectionSpecificGifts, domain.SectionPets},
	StepExecutors:    {domain.SectionExecutors, domain.SectionDigitalExecutors, domain.SectionArrangements},
	StepReview:       {},
}

// Flow drives the interview against the engine.
type Flow struct {
	Engine engine.Engine
}

// State is what the client renders for one step.
type State struct {
	Will     domain.Will `json:"will"`
	Step     string      `json:"step"`
	StepIdx  int         `json:"step_index"`
	Steps    []string    `json:"steps"`
	CanGoTo  []string    `json:"can_go_to"`
	Complete bool        `json:"complete"`
}

func stepIndex(step string) int {
	for i, s := range Order {
		if s == step {
			return i
		}
	}
	return -1
}

// ValidStep reports whether the name is a known interview step.
func ValidStep(step string) bool {
	return stepIndex(step) >= 0
}

// CurrentStep picks the first incomplete step for a will, or review when
// everything required is filled in.
func CurrentStep(w domain.Will) string {
	done := map[string]bool{}
	for _, key := range w.Progress.CompletedSections {
		done[key] = true
	}
	for _, step := range Order {
		if step == StepReview {
			break
		}
		if !done[step] {
			return step
		}
	}
	return StepReview
}

func (f Flow) state(w domain.Will, step string) State {
	idx := stepIndex(step)
	// every step up to the first incomplete one is reachable
	frontier := stepIndex(CurrentStep(w))
	reachable := Order[:frontier+1]
	return State{
		Will:     w,
		Step:     step,
		StepIdx:  idx,
		Steps:    Order,
		CanGoTo:  reachable,
		Complete: w.Progress.PercentComplete == 100,
	}
}

// Start creates a fresh draft and opens the interview at the first step.
func (f Flow) Start(ctx context.Context, userID, state, actorID string) (State, error) {
	w, err := f.Engine.CreateWill(ctx, userID, state, actorID)
	if err != nil {
		return State{}, err
	}
	return f.state(w, StepPersonalInfo), nil
}

// Load resumes an interview at the step the user left off, or at an
// explicitly requested reachable step.
func (f Flow) Load(ctx context.Context, willID, userID, step string) (State, error) {
	w, err := f.Engine.GetWill(ctx, willID, userID)
	if err != nil {
		return State{}, err
	}
	target := step
	if target == "" {
		if target = w.Progress.CurrentSection; !ValidStep(target) {
			target = CurrentStep(w)
		}
	} else if !ValidStep(target) {
		return State{}, engine.ValidationError{Field: "step", Msg: fmt.Sprintf("unknown step %s", target)}
	}
	if stepIndex(target) > stepIndex(CurrentStep(w)) {
		target = CurrentStep(w)
	}
	return f.state(w, target), nil
}

// Submit applies one step's section payloads in a single atomic write and
// advances when the step came out complete. Any validation failure leaves
// the will untouched and the user on the same step.
func (f Flow) Submit(ctx context.Context, willID, userID, actorID, step string, payloads map[string]json.RawMessage, version int) (State, error) {
	allowed, ok := stepSections[step]
	if !ok {
		return State{}, engine.ValidationError{Field: "step", Msg: fmt.Sprintf("unknown step %s", step)}
	}
	if step == StepReview {
		return State{}, engine.ValidationError{Field: "step", Msg: "review accepts no sections"}
	}
	for key := range payloads {
		found := false
		for _, a := range allowed {
			if a == key {
				found = true
				break
			}
		}
		if !found {
			return State{}, engine.ValidationError{Field: "sections", Msg: fmt.Sprintf("section %s does not belong to step %s", key, step)}
		}
	}
	next := nextStep(step)
	w, err := f.Engine.UpdateSections(ctx, willID, userID, actorID, payloads, next, version)
	if err != nil {
		return State{}, err
	}
	if !stepComplete(step, w) {
		// stay put until the step's required content is present
		return f.state(w, step), nil
	}
	return f.state(w, next), nil
}

// Back moves one step earlier without touching storage.
func (f Flow) Back(ctx context.Context, willID, userID, step string) (State, error) {
	idx := stepIndex(step)
	if idx < 0 {
		return State{}, engine.ValidationError{Field: "step", Msg: fmt.Sprintf("unknown step %s", step)}
	}
	w, err := f.Engine.GetWill(ctx, willID, userID)
	if err != nil {
		return State{}, err
	}
	if idx > 0 {
		idx--
	}
	return f.state(w, Order[idx]), nil
}

func nextStep(step string) string {
	idx := stepIndex(step)
	if idx < 0 || idx+1 >= len(Order) {
		return StepReview
	}
	return Order[idx+1]
}

func stepComplete(step string, w domain.Will) bool {
	if step == StepReview {
		return true
	}
	for _, key := range progress.Completed(w.Sections) {
		if key == step {
			return true
		}
	}
	return false
}
