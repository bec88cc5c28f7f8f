package domain

import "time"

// Will lifecycle states. Transitions are monotonic: draft -> completed is
// automatic once every required section is filled in, completed -> executed
// happens only through an explicit execution with witness data.
const (
	StatusDraft     = "draft"
	StatusCompleted = "completed"
	StatusExecuted  = "executed"
)

// Section keys accepted by section updates. Each key addresses exactly one
// independently replaceable sub-document of the will.
const (
	SectionTestator         = "testator"
	SectionSpouse           = "spouse"
	SectionChildren         = "children"
	SectionExecutors        = "executors"
	SectionGuardians        = "guardians"
	SectionRealProperty     = "real-property"
	SectionPersonalProperty = "personal-property"
	SectionSpecificGifts    = "specific-gifts"
	SectionResidualEstate   = "residual-estate"
	SectionPets             = "pets"
	SectionArrangements     = "arrangements"
	SectionDigitalExecutors = "digital-executors"
)

// Person list keys for the add/update/remove person operations.
const (
	PersonTypeExecutors = "executors"
	PersonTypeGuardians = "guardians"
)

// Asset list keys for the add/update/remove asset operations.
const (
	AssetTypeRealProperty     = "real-property"
	AssetTypePersonalProperty = "personal-property"
)

// Document kinds recorded by the PDF generation collaborator.
const (
	DocumentWillPDF              = "will-pdf"
	DocumentWishesPDF            = "wishes-pdf"
	DocumentExecutionCertificate = "execution-certificate"
)

type Address struct {
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
}

// PersonInfo holds the testator or spouse identity section.
type PersonInfo struct {
	FirstName     string  `json:"first_name"`
	MiddleName    string  `json:"middle_name,omitempty"`
	LastName      string  `json:"last_name"`
	DateOfBirth   string  `json:"date_of_birth,omitempty" format:"date"`
	Address       Address `json:"address"`
	Email         string  `json:"email,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	MaritalStatus string  `json:"marital_status,omitempty" enum:"single,married,divorced,widowed,domestic_partnership,"`
}

// Child records a child of the testator. IsMinor is derived from
// DateOfBirth and recomputed on every read, never trusted from storage.
type Child struct {
	ID           string `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	DateOfBirth  string `json:"date_of_birth,omitempty" format:"date"`
	Relationship string `json:"relationship,omitempty" enum:"biological,adopted,stepchild,"`
	IsMinor      bool   `json:"is_minor"`
	GuardianID   string `json:"guardian_id,omitempty"`
}

// Person is an appointed executor or guardian.
type Person struct {
	ID           string   `json:"id"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Relationship string   `json:"relationship,omitempty"`
	Email        string   `json:"email,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Address      *Address `json:"address,omitempty"`
	IsPrimary    bool     `json:"is_primary,omitempty"`
}

// Asset is a real or personal property entry. Address is set only for real
// property.
type Asset struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Description    string   `json:"description"`
	EstimatedValue float64  `json:"estimated_value,omitempty"`
	Address        *Address `json:"address,omitempty"`
}

type SpecificGift struct {
	ID          string  `json:"id"`
	Item        string  `json:"item"`
	Beneficiary string  `json:"beneficiary"`
	IsMonetary  bool    `json:"is_monetary,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
}

// Beneficiary names either a person already in the will (PersonID) or an
// outside party (Name).
type Beneficiary struct {
	PersonID     string  `json:"person_id,omitempty"`
	Name         string  `json:"name,omitempty"`
	Relationship string  `json:"relationship,omitempty"`
	Percentage   float64 `json:"percentage"`
}

type ResidualEstate struct {
	Beneficiaries           []Beneficiary `json:"beneficiaries"`
	ContingentBeneficiaries []Beneficiary `json:"contingent_beneficiaries,omitempty"`
}

type Pet struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Species   string  `json:"species,omitempty"`
	Caretaker string  `json:"caretaker,omitempty"`
	CareFund  float64 `json:"care_fund,omitempty"`
}

type Arrangement struct {
	ID           string `json:"id"`
	Type         string `json:"type" enum:"burial,cremation,donation,memorial,other"`
	Instructions string `json:"instructions,omitempty"`
}

type DigitalExecutor struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Scope     string `json:"scope,omitempty"`
}

// Sections is the record of independently updatable sub-documents of a will.
type Sections struct {
	Testator         *PersonInfo       `json:"testator,omitempty"`
	Spouse           *PersonInfo       `json:"spouse,omitempty"`
	Children         []Child           `json:"children,omitempty"`
	Executors        []Person          `json:"executors,omitempty"`
	Guardians        []Person          `json:"guardians,omitempty"`
	RealProperty     []Asset           `json:"real_property,omitempty"`
	PersonalProperty []Asset           `json:"personal_property,omitempty"`
	SpecificGifts    []SpecificGift    `json:"specific_gifts,omitempty"`
	ResidualEstate   *ResidualEstate   `json:"residual_estate,omitempty"`
	Pets             []Pet             `json:"pets,omitempty"`
	Arrangements     []Arrangement     `json:"arrangements,omitempty"`
	DigitalExecutors []DigitalExecutor `json:"digital_executors,omitempty"`
}

// DocumentRef points at an artifact produced by the PDF collaborator. The
// core stores the reference verbatim and never renders anything itself.
type DocumentRef struct {
	URL         string `json:"url"`
	Size        int64  `json:"size,omitempty"`
	GeneratedAt string `json:"generated_at" format:"date-time"`
}

type Documents struct {
	WillPDF              *DocumentRef `json:"will_pdf,omitempty"`
	WishesPDF            *DocumentRef `json:"wishes_pdf,omitempty"`
	ExecutionCertificate *DocumentRef `json:"execution_certificate,omitempty"`
}

type Photo struct {
	ID         string   `json:"id"`
	URL        string   `json:"url"`
	Caption    string   `json:"caption,omitempty"`
	ItemIDs    []string `json:"item_ids,omitempty"`
	Name       string   `json:"name,omitempty"`
	Size       int64    `json:"size,omitempty"`
	UploadedAt string   `json:"uploaded_at" format:"date-time"`
}

type ChatMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role" enum:"user,assistant"`
	Content string `json:"content"`
	TS      string `json:"ts" format:"date-time"`
}

// Progress is derived state, recomputed on every persisted write. Clients
// never supply it.
type Progress struct {
	CompletedSections []string `json:"completed_sections"`
	CurrentSection    string   `json:"current_section,omitempty"`
	PercentComplete   int      `json:"percent_complete"`
}

type Witness struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Address   Address `json:"address"`
}

type Notary struct {
	Name             string `json:"name"`
	CommissionNumber string `json:"commission_number,omitempty"`
	CommissionExpiry string `json:"commission_expiry,omitempty" format:"date"`
}

// WitnessInfo is supplied only at execution time.
type WitnessInfo struct {
	Witnesses     []Witness `json:"witnesses"`
	Notary        *Notary   `json:"notary,omitempty"`
	ExecutionDate string    `json:"execution_date" format:"date"`
	Location      string    `json:"location"`
}

// Will is the aggregate root. Every read and write is scoped by
// (ID, UserID); ownership is never inferred from client input.
type Will struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	Status          string        `json:"status" enum:"draft,completed,executed"`
	StateCompliance string        `json:"state_compliance"`
	Sections        Sections      `json:"sections"`
	Documents       Documents     `json:"documents"`
	Photos          []Photo       `json:"photos,omitempty"`
	ChatHistory     []ChatMessage `json:"chat_history,omitempty"`
	Progress        Progress      `json:"progress"`
	Version         int           `json:"version"`
	WitnessInfo     *WitnessInfo  `json:"witness_info,omitempty"`
	CreatedAt       string        `json:"created_at" format:"date-time"`
	UpdatedAt       string        `json:"updated_at" format:"date-time"`
	ExecutedAt      *string       `json:"executed_at,omitempty" format:"date-time"`
}

// CanBeExecuted reports whether the will is eligible for the
// completed -> executed transition. It never mutates state.
func (w Will) CanBeExecuted() bool {
	return w.Status == StatusCompleted &&
		w.Progress.PercentComplete == 100 &&
		w.Sections.Testator != nil &&
		len(w.Sections.Executors) > 0
}

// IsMinor reports whether a person born on dob (YYYY-MM-DD) is under 18 at
// the given instant. Unparseable or empty dates count as adult.
func IsMinor(dob string, now time.Time) bool {
	born, err := time.Parse("2006-01-02", dob)
	if err != nil {
		return false
	}
	return born.AddDate(18, 0, 0).After(now)
}

// RefreshMinors recomputes every child's IsMinor flag from date of birth.
// The stored flag is a point-in-time snapshot and goes stale as time
// passes; callers that hand the will to a reader run this first.
func (s *Sections) RefreshMinors(now time.Time) {
	for i := range s.Children {
		s.Children[i].IsMinor = IsMinor(s.Children[i].DateOfBirth, now)
	}
}

// HasMinorChildren is true when at least one child is under 18.
func (s Sections) HasMinorChildren(now time.Time) bool {
	for _, c := range s.Children {
		if IsMinor(c.DateOfBirth, now) {
			return true
		}
	}
	return false
}
