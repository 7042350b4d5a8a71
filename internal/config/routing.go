package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/waggle/pkg/models"
)

// RoutingTable maps task categories to princesses and princesses to drones.
// It is injected into the hive at construction so routing can be replaced
// without code edits.
type RoutingTable struct {
	// Queen maps a task category to the princess that coordinates it.
	Queen map[models.Category]string `yaml:"queen" mapstructure:"queen"`
	// Princesses maps a princess ID to its drone roster and routes.
	Princesses map[string]*PrincessRoster `yaml:"princesses" mapstructure:"princesses"`
	// DefaultPrincess receives categories with no queen mapping.
	DefaultPrincess string `yaml:"default_princess" mapstructure:"default_princess"`
}

// PrincessRoster describes the drones available to one princess.
type PrincessRoster struct {
	// Drones lists the executor IDs on this princess's roster. The first
	// entry is the fallback for categories with no route.
	Drones []string `yaml:"drones" mapstructure:"drones"`
	// Routes maps a task category to a specific drone on the roster.
	Routes map[models.Category]string `yaml:"routes" mapstructure:"routes"`
}

// DefaultRoutingTable returns the built-in hive layout.
func DefaultRoutingTable() *RoutingTable {
	return &RoutingTable{
		Queen: map[models.Category]string{
			models.CategoryCoding:     "princess-dev",
			models.CategoryTesting:    "princess-qa",
			models.CategoryReview:     "princess-qa",
			models.CategoryResearch:   "princess-research",
			models.CategoryPlanning:   "princess-research",
			models.CategorySecurity:   "princess-security",
			models.CategoryDeployment: "princess-ops",
		},
		Princesses: map[string]*PrincessRoster{
			"princess-dev": {
				Drones: []string{"drone-coder-1", "drone-coder-2"},
				Routes: map[models.Category]string{
					models.CategoryCoding: "drone-coder-1",
				},
			},
			"princess-qa": {
				Drones: []string{"drone-tester-1", "drone-reviewer-1"},
				Routes: map[models.Category]string{
					models.CategoryTesting: "drone-tester-1",
					models.CategoryReview:  "drone-reviewer-1",
				},
			},
			"princess-research": {
				Drones: []string{"drone-researcher-1"},
				Routes: map[models.Category]string{
					models.CategoryResearch: "drone-researcher-1",
					models.CategoryPlanning: "drone-researcher-1",
				},
			},
			"princess-security": {
				Drones: []string{"drone-auditor-1"},
				Routes: map[models.Category]string{
					models.CategorySecurity: "drone-auditor-1",
				},
			},
			"princess-ops": {
				Drones: []string{"drone-deployer-1"},
				Routes: map[models.Category]string{
					models.CategoryDeployment: "drone-deployer-1",
				},
			},
		},
		DefaultPrincess: "princess-dev",
	}
}

// LoadRoutingTable reads a routing table from a YAML file and validates it.
func LoadRoutingTable(path string) (*RoutingTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading routing table: %w", err)
	}

	table := &RoutingTable{}
	if err := yaml.Unmarshal(data, table); err != nil {
		return nil, fmt.Errorf("parsing routing table %s: %w", path, err)
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid routing table %s: %w", path, err)
	}
	return table, nil
}

// Validate checks that every route in the table resolves to a real drone.
func (rt *RoutingTable) Validate() error {
	if len(rt.Princesses) == 0 {
		return fmt.Errorf("routing table has no princesses")
	}

	if rt.DefaultPrincess == "" {
		return fmt.Errorf("routing table has no default princess")
	}
	if _, ok := rt.Princesses[rt.DefaultPrincess]; !ok {
		return fmt.Errorf("default princess %s is not defined", rt.DefaultPrincess)
	}

	for category, princessID := range rt.Queen {
		if !category.Valid() {
			return fmt.Errorf("queen table references unknown category %s", category)
		}
		if _, ok := rt.Princesses[princessID]; !ok {
			return fmt.Errorf("category %s routes to undefined princess %s", category, princessID)
		}
	}

	for princessID, roster := range rt.Princesses {
		if roster == nil || len(roster.Drones) == 0 {
			return fmt.Errorf("princess %s has an empty drone roster", princessID)
		}
		onRoster := make(map[string]bool, len(roster.Drones))
		for _, droneID := range roster.Drones {
			if droneID == "" {
				return fmt.Errorf("princess %s has an empty drone id on its roster", princessID)
			}
			onRoster[droneID] = true
		}
		for category, droneID := range roster.Routes {
			if !category.Valid() {
				return fmt.Errorf("princess %s routes unknown category %s", princessID, category)
			}
			if !onRoster[droneID] {
				return fmt.Errorf("princess %s routes %s to %s, which is not on its roster",
					princessID, category, droneID)
			}
		}
	}

	return nil
}
