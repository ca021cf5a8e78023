package roster

import "time"

// Voter is the shared record candidates may request edits against.
type Voter struct {
	ID string

	Sumaaru         string
	Name            string
	Address         string
	Phone           string
	Sex             string
	NID             string
	PresentLocation string
	RegisteredBox   string
	JobIn           string
	JobBy           string

	CreatedBy string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FieldValue reads a named field. Returns false for unknown names.
func (v *Voter) FieldValue(name string) (string, bool) {
	switch name {
	case FieldSumaaru:
		return v.Sumaaru, true
	case FieldName:
		return v.Name, true
	case FieldAddress:
		return v.Address, true
	case FieldPhone:
		return v.Phone, true
	case FieldSex:
		return v.Sex, true
	case FieldNID:
		return v.NID, true
	case FieldPresentLocation:
		return v.PresentLocation, true
	case FieldRegisteredBox:
		return v.RegisteredBox, true
	case FieldJobIn:
		return v.JobIn, true
	case FieldJobBy:
		return v.JobBy, true
	default:
		return "", false
	}
}

// SetField writes a named field. Returns false for unknown names.
func (v *Voter) SetField(name, value string) bool {
	switch name {
	case FieldSumaaru:
		v.Sumaaru = value
	case FieldName:
		v.Name = value
	case FieldAddress:
		v.Address = value
	case FieldPhone:
		v.Phone = value
	case FieldSex:
		v.Sex = value
	case FieldNID:
		v.NID = value
	case FieldPresentLocation:
		v.PresentLocation = value
	case FieldRegisteredBox:
		v.RegisteredBox = value
	case FieldJobIn:
		v.JobIn = value
	case FieldJobBy:
		v.JobBy = value
	default:
		return false
	}
	return true
}

// Candidate is a restricted actor profile linked one-to-one to a user.
type Candidate struct {
	ID              string
	UserID          string
	Name            string
	CandidateNumber string
	Phone           string
	Position        string
	CreatedAt       time.Time
}

// WillVote is a per-candidate preference about a voter, stored separately
// from the voter row and keyed by (candidate id, voter id).
type WillVote struct {
	CandidateID string
	VoterID     string
	Will        bool
	UpdatedAt   time.Time
}
