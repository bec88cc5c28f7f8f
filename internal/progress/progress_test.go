package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekendwill/internal/domain"
)

func fullSections() domain.Sections {
	return domain.Sections{
		Testator:  &domain.PersonInfo{FirstName: "Ada", LastName: "Lovelace"},
		Spouse:    &domain.PersonInfo{FirstName: "William", LastName: "King"},
		Executors: []domain.Person{{ID: "p1", FirstName: "Grace", LastName: "Hopper"}},
		PersonalProperty: []domain.Asset{
			{ID: "a1", Type: "vehicle", Description: "1962 sedan"},
		},
		ResidualEstate: &domain.ResidualEstate{
			Beneficiaries: []domain.Beneficiary{{Name: "William King", Percentage: 100}},
		},
	}
}

func TestComputeEmpty(t *testing.T) {
	p := Compute(domain.Sections{}, "personal-info")
	assert.Empty(t, p.CompletedSections)
	assert.Equal(t, 0, p.PercentComplete)
	assert.Equal(t, "personal-info", p.CurrentSection)
}

func TestComputeFull(t *testing.T) {
	p := Compute(fullSections(), "review")
	require.Len(t, p.CompletedSections, 5)
	assert.Equal(t, 100, p.PercentComplete)
}

func TestComputeSingleSection(t *testing.T) {
	s := domain.Sections{Executors: []domain.Person{{ID: "p1", FirstName: "Jane", LastName: "Doe"}}}
	p := Compute(s, "")
	assert.Equal(t, []string{StepExecutors}, p.CompletedSections)
	assert.Equal(t, 20, p.PercentComplete)
}

func TestSectionRules(t *testing.T) {
	cases := []struct {
		name     string
		sections domain.Sections
		want     []string
	}{
		{
			"testator only",
			domain.Sections{Testator: &domain.PersonInfo{FirstName: "A", LastName: "B"}},
			[]string{StepPersonalInfo},
		},
		{
			"spouse satisfies family",
			domain.Sections{Spouse: &domain.PersonInfo{FirstName: "A", LastName: "B"}},
			[]string{StepFamily},
		},
		{
			"children satisfy family",
			domain.Sections{Children: []domain.Child{{ID: "c1", FirstName: "A", LastName: "B"}}},
			[]string{StepFamily},
		},
		{
			"real property satisfies assets",
			domain.Sections{RealProperty: []domain.Asset{{ID: "a1", Type: "home"}}},
			[]string{StepAssets},
		},
		{
			"personal property satisfies assets",
			domain.Sections{PersonalProperty: []domain.Asset{{ID: "a1", Type: "vehicle"}}},
			[]string{StepAssets},
		},
		{
			"residual estate without beneficiaries is incomplete",
			domain.Sections{ResidualEstate: &domain.ResidualEstate{}},
			[]string{},
		},
		{
			"beneficiaries satisfy distribution",
			domain.Sections{ResidualEstate: &domain.ResidualEstate{
				Beneficiaries: []domain.Beneficiary{{Name: "X", Percentage: 100}},
			}},
			[]string{StepDistribution},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Completed(c.sections))
		})
	}
}

func TestComputeDeterministic(t *testing.T) {
	s := fullSections()
	first := Compute(s, "review")
	second := Compute(s, "review")
	assert.Equal(t, first, second)
}
