package convergence

import (
	"strings"

	"github.com/google/uuid"

	"github.com/ShayCichocki/waggle/pkg/models"
)

// Premortem perspective names.
const (
	PerspectiveTechnical   = "technical"
	PerspectiveOperational = "operational"
	PerspectivePlanning    = "planning"
)

// mitigatedFloor is the lowest likelihood a mitigated scenario can reach.
const mitigatedFloor = 0.05

// redFlag is one heuristic a premortem perspective applies to the living
// spec and plan texts.
type redFlag struct {
	// description is the stable scenario text; duplicates across
	// perspectives merge on it.
	description string
	priority    models.Priority
	likelihood  float64
	impact      float64
	// triggered reports whether the flag fires for the lowered text and
	// the number of research artifacts found.
	triggered func(text string, artifacts int) bool
	// marker is the lowercase phrase a mitigation introduces into the
	// texts; every occurrence halves the scenario's likelihood.
	marker string
	// mitigation is the remediation appended when the scenario survives a
	// premortem. It must contain the marker.
	mitigation string
}

var technicalFlags = []redFlag{
	{
		description: "Delivery depends on a novel or unproven approach",
		priority:    models.PriorityP1,
		likelihood:  0.6,
		impact:      0.8,
		triggered: func(text string, _ int) bool {
			return containsAny(text, "novel", "experimental", "unproven", "cutting-edge", "bleeding edge")
		},
		marker:     "prototype spike",
		mitigation: "Run a prototype spike to de-risk the unproven approach before committing the schedule.",
	},
	{
		description: "Plan contains a known delivery anti-pattern",
		priority:    models.PriorityP0,
		likelihood:  0.7,
		impact:      0.9,
		triggered: func(text string, _ int) bool {
			return containsAny(text, "big bang", "big-bang", "rewrite from scratch", "god object", "shared mutable state")
		},
		marker:     "incremental migration",
		mitigation: "Replace the big-bang step with an incremental migration behind a feature flag.",
	},
}

var operationalFlags = []redFlag{
	{
		description: "No error-handling strategy is defined",
		priority:    models.PriorityP1,
		likelihood:  0.5,
		impact:      0.8,
		triggered: func(text string, _ int) bool {
			return !containsAny(text, "error handling", "retry", "retries", "recovery")
		},
		marker:     "error handling strategy",
		mitigation: "Define an error handling strategy: bounded retries with backoff and a documented recovery path.",
	},
	{
		description: "No contingency buffer or fallback is planned",
		priority:    models.PriorityP1,
		likelihood:  0.5,
		impact:      0.7,
		triggered: func(text string, _ int) bool {
			return !containsAny(text, "contingency", "buffer", "fallback")
		},
		marker:     "contingency buffer",
		mitigation: "Add a contingency buffer and a fallback plan for the riskiest external dependency.",
	},
}

var planningFlags = []redFlag{
	{
		description: "Timeline is aggressive with no slack",
		priority:    models.PriorityP1,
		likelihood:  0.6,
		impact:      0.7,
		triggered: func(text string, _ int) bool {
			return containsAny(text, "asap", "as soon as possible", "aggressive", "hard deadline", "immediately")
		},
		marker:     "re-baselined schedule",
		mitigation: "Publish a re-baselined schedule with explicit slack; aggressive dates become review checkpoints.",
	},
	{
		description: "Decisions rest on insufficient supporting evidence",
		priority:    models.PriorityP2,
		likelihood:  0.5,
		impact:      0.6,
		triggered: func(_ string, artifacts int) bool {
			return artifacts < 2
		},
		marker:     "supporting evidence",
		mitigation: "Record the supporting evidence for each decision and gather at least two independent references.",
	},
}

// premortemPerspectives are the three independent reviewers. Each applies
// its own red-flag heuristics; overlapping findings merge downstream.
var premortemPerspectives = []struct {
	name  string
	flags []redFlag
}{
	{PerspectiveTechnical, technicalFlags},
	{PerspectiveOperational, operationalFlags},
	{PerspectivePlanning, planningFlags},
}

// runPremortem scans the spec and plan texts from all three perspectives
// and returns the proposed failure scenarios. A mitigation already present
// in the texts attenuates its scenario: each marker occurrence halves the
// likelihood, down to a floor.
func runPremortem(spec, plan string, artifacts int) []*models.FailureScenario {
	text := strings.ToLower(spec + "\n" + plan)

	var scenarios []*models.FailureScenario
	for _, perspective := range premortemPerspectives {
		for _, flag := range perspective.flags {
			if !flag.triggered(text, artifacts) {
				continue
			}

			likelihood := flag.likelihood
			for i := strings.Count(text, flag.marker); i > 0; i-- {
				likelihood /= 2
			}
			if likelihood < mitigatedFloor {
				likelihood = mitigatedFloor
			}

			scenarios = append(scenarios, &models.FailureScenario{
				ID:          uuid.New().String(),
				Description: flag.description,
				Priority:    flag.priority,
				Likelihood:  likelihood,
				Impact:      flag.impact,
				Perspective: perspective.name,
			})
		}
	}
	return scenarios
}

// mitigationFor returns the remediation text for a scenario, matched by
// normalized description. Unknown scenarios get a generic entry.
func mitigationFor(s *models.FailureScenario) string {
	key := normalizeDescription(s.Description)
	for _, perspective := range premortemPerspectives {
		for _, flag := range perspective.flags {
			if normalizeDescription(flag.description) == key {
				return flag.mitigation
			}
		}
	}
	return "Assign an owner and an explicit mitigation for: " + s.Description
}

// containsAny reports whether text contains any of the needles.
func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
