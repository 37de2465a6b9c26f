package schema

import (
	"encoding/json"
	"strings"
	"time"

	"esocial/internal/events/models"
)

// Payload is the closed set of typed event payloads. Each variant normalizes
// itself and checks the rules a JSON Schema cannot express.
type Payload interface {
	EventType() models.EventType
	normalize()
	check(errs fieldErrors)
}

func newPayload(t models.EventType) Payload {
	switch t {
	case models.TypeEmployerRegistration:
		return &EmployerRegistration{}
	case models.TypeInitialRegistration:
		return &InitialRegistration{}
	case models.TypeCadastralUpdate:
		return &CadastralUpdate{}
	case models.TypeContractChange:
		return &ContractChange{}
	case models.TypeWorkplaceAccident:
		return &WorkplaceAccident{}
	case models.TypeLeaveOfAbsence:
		return &LeaveOfAbsence{}
	case models.TypeEnvironmentalConditions:
		return &EnvironmentalConditions{}
	case models.TypePriorNotice:
		return &PriorNotice{}
	case models.TypeTermination:
		return &Termination{}
	case models.TypeRetirementBenefit:
		return &RetirementBenefit{}
	default:
		return nil
	}
}

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// Date is a calendar date serialized as YYYY-MM-DD.
type Date struct{ time.Time }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// Month is a competence month serialized as YYYY-MM.
type Month struct{ time.Time }

func (m Month) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Format(monthLayout))
}

func (m *Month) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return err
	}
	m.Time = t
	return nil
}

type Address struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZIP          string `json:"zip"`
}

func (a *Address) normalize() {
	a.Street = strings.TrimSpace(a.Street)
	a.Number = strings.TrimSpace(a.Number)
	a.Complement = strings.TrimSpace(a.Complement)
	a.Neighborhood = strings.TrimSpace(a.Neighborhood)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.ToUpper(strings.TrimSpace(a.State))
	a.ZIP = digitsOnly(a.ZIP)
}

// EmployerRegistration is S-1000.
type EmployerRegistration struct {
	EmployerCPF string  `json:"employer_cpf"`
	Name        string  `json:"name"`
	ValidFrom   Month   `json:"valid_from"`
	ValidUntil  *Month  `json:"valid_until,omitempty"`
	Address     Address `json:"address"`
	Phone       string  `json:"phone,omitempty"`
	Email       string  `json:"email,omitempty"`
}

func (*EmployerRegistration) EventType() models.EventType { return models.TypeEmployerRegistration }

func (p *EmployerRegistration) normalize() {
	p.EmployerCPF = digitsOnly(p.EmployerCPF)
	p.Name = strings.TrimSpace(p.Name)
	p.Address.normalize()
	p.Phone = strings.TrimSpace(p.Phone)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
}

func (p *EmployerRegistration) check(errs fieldErrors) {
	errs.checkCPF("employer_cpf", p.EmployerCPF)
	if p.ValidUntil != nil && p.ValidUntil.Before(p.ValidFrom.Time) {
		errs.add("valid_until", "must not be before valid_from")
	}
}

// InitialRegistration is S-2200.
type InitialRegistration struct {
	CPF             string  `json:"cpf"`
	NIS             string  `json:"nis,omitempty"`
	Name            string  `json:"name"`
	BirthDate       Date    `json:"birth_date"`
	Sex             string  `json:"sex"`
	MaritalStatus   string  `json:"marital_status,omitempty"`
	Address         Address `json:"address"`
	AdmissionDate   Date    `json:"admission_date"`
	RoleCode        string  `json:"role_code"`
	Salary          float64 `json:"salary"`
	SalaryUnit      string  `json:"salary_unit"`
	WeeklyHours     float64 `json:"weekly_hours"`
	ContractType    string  `json:"contract_type"`
	ContractEndDate *Date   `json:"contract_end_date,omitempty"`
}

const (
	contractIndefinite = "indefinite"
	contractFixedTerm  = "fixed_term"
	minimumWorkingAge  = 18
)

func (*InitialRegistration) EventType() models.EventType { return models.TypeInitialRegistration }

func (p *InitialRegistration) normalize() {
	p.CPF = digitsOnly(p.CPF)
	p.NIS = digitsOnly(p.NIS)
	p.Name = strings.TrimSpace(p.Name)
	p.Address.normalize()
}

func (p *InitialRegistration) check(errs fieldErrors) {
	errs.checkCPF("cpf", p.CPF)
	errs.checkNIS("nis", p.NIS)
	if ageAt(p.BirthDate.Time, p.AdmissionDate.Time) < minimumWorkingAge {
		errs.add("birth_date", "employee must be at least 18 at admission_date")
	}
	switch p.ContractType {
	case contractFixedTerm:
		if p.ContractEndDate == nil {
			errs.add("contract_end_date", "is required for fixed_term contracts")
		} else if p.ContractEndDate.Before(p.AdmissionDate.Time) {
			errs.add("contract_end_date", "must not be before admission_date")
		}
	case contractIndefinite:
		if p.ContractEndDate != nil {
			errs.add("contract_end_date", "is not allowed for indefinite contracts")
		}
	}
}

// ageAt returns completed years between birth and on.
func ageAt(birth, on time.Time) int {
	years := on.Year() - birth.Year()
	if on.Month() < birth.Month() || (on.Month() == birth.Month() && on.Day() < birth.Day()) {
		years--
	}
	return years
}

// CadastralUpdate is S-2205.
type CadastralUpdate struct {
	CPF           string   `json:"cpf"`
	ChangeDate    Date     `json:"change_date"`
	Name          string   `json:"name,omitempty"`
	Address       *Address `json:"address,omitempty"`
	MaritalStatus string   `json:"marital_status,omitempty"`
}

func (*CadastralUpdate) EventType() models.EventType { return models.TypeCadastralUpdate }

func (p *CadastralUpdate) normalize() {
	p.CPF = digitsOnly(p.CPF)
	p.Name = strings.TrimSpace(p.Name)
	if p.Address != nil {
		p.Address.normalize()
	}
}

func (p *CadastralUpdate) check(errs fieldErrors) {
	errs.checkCPF("cpf", p.CPF)
	if p.Name == "" && p.Address == nil && p.MaritalStatus == "" {
		errs.add("payload", "at least one of name, address or marital_status is required")
	}
}

// ContractChange is S-2206.
type ContractChange struct {
	CPF         string   `json:"cpf"`
	ChangeDate  Date     `json:"change_date"`
	Salary      *float64 `json:"salary,omitempty"`
	SalaryUnit  string   `json:"salary_unit,omitempty"`
	RoleCode    string   `json:"role_code,omitempty"`
	WeeklyHours *float64 `json:"weekly_hours,omitempty"`
	Description string   `json:"description,omitempty"`
}

func (*ContractChange) EventType() models.EventType { return models.TypeContractChange }

func (p *ContractChange) normalize() {
	p.CPF = digitsOnly(p.CPF)
	p.Description = strings.TrimSpace(p.Description)
}

func (p *ContractChange) check(errs fieldErrors) {
	errs.checkCPF("cpf", p.CPF)
	if p.Salary == nil && p.RoleCode == "" && p.WeeklyHours == nil {
		errs.add("payload", "at least one of salary, role_code or weekly_hours is required")
	}
	if p.Salary != nil && p.SalaryUnit == "" {
		errs.add("salary_unit", "is required when salary changes")
	}
}

// WorkplaceAccident is S-2210.
type WorkplaceAccident struct {
	CPF               string `json:"cpf"`
	AccidentDate      Date   `json:"accident_date"`
	AccidentTime      string `json:"accident_time,omitempty"`
	AccidentType      string `json:"accident_type"`
	Location          string `json:"location"`
	BodyPartCode      string `json:"body_part_code,omitempty"`
	InjuryDescription string `json:"injury_description"`
	Death             bool   `json:"death"`
	DaysOff           int    `json:"days_off"`
	ReportedAt        Date   `json:"reported_at"`
	DoctorCRM         string `json:"doctor_crm,omitempty"`
}

func (*WorkplaceAccident) EventType() models.EventType { return models.TypeWorkplaceAccident }

func (p *WorkplaceAccident) normalize() {
	p.CPF = digitsOnly(p.CPF)
	p.Location = strings.TrimSpace(p.Location)
	p.InjuryDescription = strings.TrimSpace(p.InjuryDescription)
}

func (p *WorkplaceAccident) check(errs fieldErrors) {
	errs.checkCPF("cpf", p.CPF)
	if p.ReportedAt.Before(p.AccidentDate.Time) {
		errs.add("reported_at", "must not be before accident_date")
	}
	if p.Death && p.DaysOff != 0 {
		errs.add("days_off", "must be 0 when the accident was fatal")
	}
}

// LeaveOfAbsence is S-2230.
type LeaveOfAbsence struct {
	CPF        string `json:"cpf"`
	ReasonCode string `json:"reason_code"`
	StartDate  Date   `json:"start_date"`
	EndDate    *Date  `json:"end_date,omitempty"`
	CID        string `json:"cid,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

func (*LeaveOfAbsence) EventType() models.EventType { return models.TypeLeaveOfAbsence }

func (p *LeaveOfAbsence) normalize() {
	p.CPF = digitsOnly(p.CPF)
	p.CID = strings.ToUpper(strings.ReplaceAll(p.CID, ".", ""))
	p.Notes = strings.TrimSpace(p.Notes)
}

func (p *LeaveOfAbsence) check(errs fieldErrors) {
	errs.checkCPF("cpf", p.CPF)
	if p.EndDate != nil && p.EndDate.Before(p.StartDate.Time) {
		errs.add("end_date", "must not be before start_date")
	}
}

// Agent is one harmful agent present in the workplace.
type Agent struct {
	Code         string   `json:"code"`
	Description  string   `json:"description"`
	Intensity    *float64 `json:"intensity,omitempty"`
	EPIEffective *bool    `json:"epi_effective,omitempty"`
}

// EnvironmentalConditions is S-2240.
type EnvironmentalConditions struct {
	CPF                  string  `json:"cpf"`
	StartDate            Date    `json:"start_date"`
	WorkplaceDescription string  `json:"workplace_description"`
	ResponsibleName      string  `json:"responsible_name,omitempty"`
	Agents               []Agent `json:"agents"`
}

func (*EnvironmentalConditions) EventType() models.EventType {
	return models.TypeEnvironmentalConditions
}

func (p *EnvironmentalConditions) normalize() {
	p.CPF = digitsOnly(p.CPF)
	p.WorkplaceDescription = strings.TrimSpace(p.WorkplaceDescription)
	p.ResponsibleName = strings.TrimSpace(p.ResponsibleName)
	for i := range p.Agents {
		p.Agents[i].Description = strings.TrimSpace(p.Agents[i].Description)
	}
}

func (p *EnvironmentalConditions) check(errs fieldErrors) {
	errs.checkCPF("cpf", p.CPF)
	seen := make(map[string]int, len(p.Agents))
	for i, a := range p.Agents {
		if first, dup := seen[a.Code]; dup {
			errs.add(indexPath("agents", i, "code"), "duplicates agents."+itoa(first)+".code")
			continue
		}
		seen[a.Code] = i
	}
}

// PriorNotice is S-2250.
type PriorNotice struct {
	CPF                string `json:"cpf"`
	NoticeDate         Date   `json:"notice_date"`
	TerminationDate    Date   `json:"termination_date"`
	NoticeType         string `json:"notice_type"`
	ReducedHoursOption string `json:"reduced_hours_option,omitempty"`
}

func (*PriorNotice) EventType() models.EventType { return models.TypePriorNotice }

func (p *PriorNotice) normalize() {
	p.CPF = digitsOnly(p.CPF)
}

func (p *PriorNotice) check(errs fieldErrors) {
	errs.checkCPF("cpf", p.CPF)
	if p.TerminationDate.Before(p.NoticeDate.Time) {
		errs.add("termination_date", "must not be before notice_date")
	}
}

// Termination is S-2299.
type Termination struct {
	CPF                 string   `json:"cpf"`
	TerminationDate     Date     `json:"termination_date"`
	ReasonCode          string   `json:"reason_code"`
	NoticeIndemnified   bool     `json:"notice_indemnified"`
	NoticeDate          *Date    `json:"notice_date,omitempty"`
	LastSalary          *float64 `json:"last_salary,omitempty"`
	PendingVacationDays *int     `json:"pending_vacation_days,omitempty"`
}

func (*Termination) EventType() models.EventType { return models.TypeTermination }

func (p *Termination) normalize() {
	p.CPF = digitsOnly(p.CPF)
}

func (p *Termination) check(errs fieldErrors) {
	errs.checkCPF("cpf", p.CPF)
	if p.NoticeIndemnified {
		return
	}
	if p.NoticeDate == nil {
		errs.add("notice_date", "is required when notice is not indemnified")
	} else if p.NoticeDate.After(p.TerminationDate.Time) {
		errs.add("notice_date", "must not be after termination_date")
	}
}

// RetirementBenefit is S-2400.
type RetirementBenefit struct {
	BeneficiaryCPF string  `json:"beneficiary_cpf"`
	Name           string  `json:"name"`
	BirthDate      Date    `json:"birth_date"`
	BenefitType    string  `json:"benefit_type"`
	StartDate      Date    `json:"start_date"`
	EndDate        *Date   `json:"end_date,omitempty"`
	MonthlyAmount  float64 `json:"monthly_amount"`
}

func (*RetirementBenefit) EventType() models.EventType { return models.TypeRetirementBenefit }

func (p *RetirementBenefit) normalize() {
	p.BeneficiaryCPF = digitsOnly(p.BeneficiaryCPF)
	p.Name = strings.TrimSpace(p.Name)
}

func (p *RetirementBenefit) check(errs fieldErrors) {
	errs.checkCPF("beneficiary_cpf", p.BeneficiaryCPF)
	if p.EndDate != nil && p.EndDate.Before(p.StartDate.Time) {
		errs.add("end_date", "must not be before start_date")
	}
}
