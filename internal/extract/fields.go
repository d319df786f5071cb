package extract

import "regexp"

// Field keys of the parsed PIF form.
const (
	FieldCandidateID   = "candidate_id"
	FieldCandidateName = "candidate_name"
	FieldDateOfBirth   = "date_of_birth"
	FieldEmployer      = "employer"
	FieldRole          = "role"
	FieldEducation     = "education"
)

// fieldPatterns match "Label: value" lines in layout-preserved text. First
// match per field wins.
var fieldPatterns = []struct {
	key string
	re  *regexp.Regexp
}{
	{FieldCandidateID, regexp.MustCompile(`(?im)^\s*candidate\s*id\s*[:\-]\s*(.+?)\s*$`)},
	{FieldCandidateName, regexp.MustCompile(`(?im)^\s*(?:candidate\s*)?name\s*[:\-]\s*(.+?)\s*$`)},
	{FieldDateOfBirth, regexp.MustCompile(`(?im)^\s*(?:date\s*of\s*birth|dob)\s*[:\-]\s*(.+?)\s*$`)},
	{FieldEmployer, regexp.MustCompile(`(?im)^\s*(?:current\s*)?employer\s*[:\-]\s*(.+?)\s*$`)},
	{FieldRole, regexp.MustCompile(`(?im)^\s*(?:role|designation|position)\s*[:\-]\s*(.+?)\s*$`)},
	{FieldEducation, regexp.MustCompile(`(?im)^\s*(?:highest\s*)?(?:education|qualification)\s*[:\-]\s*(.+?)\s*$`)},
}

// ParseFields pulls the PIF fields out of extracted text. Every key is
// present in the result; fields the text does not carry map to "".
func ParseFields(text string) map[string]string {
	fields := make(map[string]string, len(fieldPatterns))
	for _, fp := range fieldPatterns {
		fields[fp.key] = ""
		if m := fp.re.FindStringSubmatch(text); m != nil {
			fields[fp.key] = m[1]
		}
	}
	return fields
}

// AllEmpty reports whether no field carries a value, i.e. the form is
// effectively unextracted.
func AllEmpty(fields map[string]string) bool {
	for _, v := range fields {
		if v != "" {
			return false
		}
	}
	return true
}
