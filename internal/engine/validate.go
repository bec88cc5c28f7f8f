package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"

	"weekendwill/internal/domain"
)

// ValidationError indicates a malformed section payload. Rejected wholesale
// before anything reaches storage.
type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func knownSection(key string) bool {
	switch key {
	case domain.SectionTestator, domain.SectionSpouse, domain.SectionChildren,
		domain.SectionExecutors, domain.SectionGuardians,
		domain.SectionRealProperty, domain.SectionPersonalProperty,
		domain.SectionSpecificGifts, domain.SectionResidualEstate,
		domain.SectionPets, domain.SectionArrangements, domain.SectionDigitalExecutors:
		return true
	}
	return false
}

func strictDecode(raw json.RawMessage, field string, into any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return ValidationError{Field: field, Msg: err.Error()}
	}
	return nil
}

// applySection decodes and writes one section payload into the working
// copy. A JSON null clears the section. List entries get ids assigned when
// missing so clients can address them later.
func applySection(s *domain.Sections, key string, raw json.RawMessage) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		clearSection(s, key)
		return nil
	}
	switch key {
	case domain.SectionTestator:
		var p domain.PersonInfo
		if err := strictDecode(raw, key, &p); err != nil {
			return err
		}
		if err := validatePersonInfo(key, p); err != nil {
			return err
		}
		s.Testator = &p
	case domain.SectionSpouse:
		var p domain.PersonInfo
		if err := strictDecode(raw, key, &p); err != nil {
			return err
		}
		if p.FirstName == "" || p.LastName == "" {
			return ValidationError{Field: key, Msg: "first and last name required"}
		}
		s.Spouse = &p
	case domain.SectionChildren:
		var children []domain.Child
		if err := strictDecode(raw, key, &children); err != nil {
			return err
		}
		for i := range children {
			if children[i].FirstName == "" || children[i].LastName == "" {
				return ValidationError{Field: fmt.Sprintf("%s[%d]", key, i), Msg: "first and last name required"}
			}
			if children[i].ID == "" {
				children[i].ID = uuid.NewString()
			}
		}
		s.Children = children
	case domain.SectionExecutors:
		people, err := decodePeople(raw, key)
		if err != nil {
			return err
		}
		s.Executors = people
	case domain.SectionGuardians:
		people, err := decodePeople(raw, key)
		if err != nil {
			return err
		}
		s.Guardians = people
	case domain.SectionRealProperty:
		assets, err := decodeAssets(raw, key)
		if err != nil {
			return err
		}
		s.RealProperty = assets
	case domain.SectionPersonalProperty:
		assets, err := decodeAssets(raw, key)
		if err != nil {
			return err
		}
		s.PersonalProperty = assets
	case domain.SectionSpecificGifts:
		var gifts []domain.SpecificGift
		if err := strictDecode(raw, key, &gifts); err != nil {
			return err
		}
		for i := range gifts {
			if gifts[i].Item == "" || gifts[i].Beneficiary == "" {
				return ValidationError{Field: fmt.Sprintf("%s[%d]", key, i), Msg: "item and beneficiary required"}
			}
			if gifts[i].ID == "" {
				gifts[i].ID = uuid.NewString()
			}
		}
		s.SpecificGifts = gifts
	case domain.SectionResidualEstate:
		var re domain.ResidualEstate
		if err := strictDecode(raw, key, &re); err != nil {
			return err
		}
		if err := validateBeneficiaries(key+".beneficiaries", re.Beneficiaries); err != nil {
			return err
		}
		if len(re.ContingentBeneficiaries) > 0 {
			if err := validateBeneficiaries(key+".contingent_beneficiaries", re.ContingentBeneficiaries); err != nil {
				return err
			}
		}
		s.ResidualEstate = &re
	case domain.SectionPets:
		var pets []domain.Pet
		if err := strictDecode(raw, key, &pets); err != nil {
			return err
		}
		for i := range pets {
			if pets[i].Name == "" {
				return ValidationError{Field: fmt.Sprintf("%s[%d]", key, i), Msg: "name required"}
			}
			if pets[i].ID == "" {
				pets[i].ID = uuid.NewString()
			}
		}
		s.Pets = pets
	case domain.SectionArrangements:
		var arrangements []domain.Arrangement
		if err := strictDecode(raw, key, &arrangements); err != nil {
			return err
		}
		for i := range arrangements {
			if arrangements[i].Type == "" {
				return ValidationError{Field: fmt.Sprintf("%s[%d]", key, i), Msg: "type required"}
			}
			if arrangements[i].ID == "" {
				arrangements[i].ID = uuid.NewString()
			}
		}
		s.Arrangements = arrangements
	case domain.SectionDigitalExecutors:
		var des []domain.DigitalExecutor
		if err := strictDecode(raw, key, &des); err != nil {
			return err
		}
		for i := range des {
			if des[i].FirstName == "" || des[i].LastName == "" {
				return ValidationError{Field: fmt.Sprintf("%s[%d]", key, i), Msg: "first and last name required"}
			}
			if des[i].ID == "" {
				des[i].ID = uuid.NewString()
			}
		}
		s.DigitalExecutors = des
	default:
		return ValidationError{Field: "section", Msg: fmt.Sprintf("unknown section %s", key)}
	}
	return nil
}

func clearSection(s *domain.Sections, key string) {
	switch key {
	case domain.SectionTestator:
		s.Testator = nil
	case domain.SectionSpouse:
		s.Spouse = nil
	case domain.SectionChildren:
		s.Children = nil
	case domain.SectionExecutors:
		s.Executors = nil
	case domain.SectionGuardians:
		s.Guardians = nil
	case domain.SectionRealProperty:
		s.RealProperty = nil
	case domain.SectionPersonalProperty:
		s.PersonalProperty = nil
	case domain.SectionSpecificGifts:
		s.SpecificGifts = nil
	case domain.SectionResidualEstate:
		s.ResidualEstate = nil
	case domain.SectionPets:
		s.Pets = nil
	case domain.SectionArrangements:
		s.Arrangements = nil
	case domain.SectionDigitalExecutors:
		s.DigitalExecutors = nil
	}
}

func decodePeople(raw json.RawMessage, field string) ([]domain.Person, error) {
	var people []domain.Person
	if err := strictDecode(raw, field, &people); err != nil {
		return nil, err
	}
	for i := range people {
		if err := validatePerson(people[i]); err != nil {
			return nil, ValidationError{Field: fmt.Sprintf("%s[%d]", field, i), Msg: err.Error()}
		}
		if people[i].ID == "" {
			people[i].ID = uuid.NewString()
		}
	}
	return people, nil
}

func decodeAssets(raw json.RawMessage, field string) ([]domain.Asset, error) {
	var assets []domain.Asset
	if err := strictDecode(raw, field, &assets); err != nil {
		return nil, err
	}
	for i := range assets {
		if err := validateAsset(assets[i]); err != nil {
			return nil, ValidationError{Field: fmt.Sprintf("%s[%d]", field, i), Msg: err.Error()}
		}
		if assets[i].ID == "" {
			assets[i].ID = uuid.NewString()
		}
	}
	return assets, nil
}

func validatePersonInfo(field string, p domain.PersonInfo) error {
	if p.FirstName == "" || p.LastName == "" {
		return ValidationError{Field: field, Msg: "first and last name required"}
	}
	if p.Address.State == "" {
		return ValidationError{Field: field + ".address.state", Msg: "required"}
	}
	return nil
}

func validatePerson(p domain.Person) error {
	if p.FirstName == "" || p.LastName == "" {
		return ValidationError{Msg: "first and last name required"}
	}
	return nil
}

func validateAsset(a domain.Asset) error {
	if a.Type == "" {
		return ValidationError{Msg: "type required"}
	}
	if a.Description == "" {
		return ValidationError{Msg: "description required"}
	}
	if a.EstimatedValue < 0 {
		return ValidationError{Msg: "estimated value must not be negative"}
	}
	return nil
}

// validateBeneficiaries enforces the whole-estate rule: shares must sum to
// 100 within a small float tolerance.
func validateBeneficiaries(field string, bs []domain.Beneficiary) error {
	if len(bs) == 0 {
		return nil
	}
	var sum float64
	for i, b := range bs {
		if b.PersonID == "" && b.Name == "" {
			return ValidationError{Field: fmt.Sprintf("%s[%d]", field, i), Msg: "person_id or name required"}
		}
		if b.Percentage <= 0 {
			return ValidationError{Field: fmt.Sprintf("%s[%d].percentage", field, i), Msg: "must be positive"}
		}
		sum += b.Percentage
	}
	if math.Abs(sum-100) > 0.01 {
		return ValidationError{Field: field, Msg: fmt.Sprintf("percentages must sum to 100, got %g", sum)}
	}
	return nil
}

// validateSections runs cross-section checks after all updates are applied
// to the working copy.
func validateSections(s domain.Sections) error {
	guardians := map[string]bool{}
	for _, g := range s.Guardians {
		guardians[g.ID] = true
	}
	for i, c := range s.Children {
		if c.GuardianID != "" && !guardians[c.GuardianID] {
			return ValidationError{Field: fmt.Sprintf("children[%d].guardian_id", i), Msg: fmt.Sprintf("unknown guardian %s", c.GuardianID)}
		}
	}
	return nil
}
