package roster

// Named voter fields. These are the only names accepted in permission
// grants, scoped updates, and edit requests.
const (
	FieldSumaaru         = "sumaaru"
	FieldName            = "name"
	FieldAddress         = "address"
	FieldPhone           = "phone"
	FieldSex             = "sex"
	FieldNID             = "nid"
	FieldPresentLocation = "present_location"
	FieldRegisteredBox   = "registered_box"
	FieldJobIn           = "job_in"
	FieldJobBy           = "job_by"
)

// VoterFields lists every named voter field, in display order.
var VoterFields = []string{
	FieldSumaaru,
	FieldName,
	FieldAddress,
	FieldPhone,
	FieldSex,
	FieldNID,
	FieldPresentLocation,
	FieldRegisteredBox,
	FieldJobIn,
	FieldJobBy,
}

// DefaultAllowedFields is the minimal grant applied when a candidate has no
// permission rows at all. Contact and location only; everything else needs
// an explicit grant or an approved edit request.
var DefaultAllowedFields = []string{
	FieldPhone,
	FieldPresentLocation,
}

var voterFieldSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(VoterFields))
	for _, f := range VoterFields {
		m[f] = struct{}{}
	}
	return m
}()

// ValidField reports whether name is a known voter field.
func ValidField(name string) bool {
	_, ok := voterFieldSet[name]
	return ok
}
