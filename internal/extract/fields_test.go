package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleForm = `
                  PERSONAL INFORMATION FORM

Candidate ID:      C-2093
Candidate Name:    Asha Rao
Date of Birth:     14/02/1994
Current Employer:  Acme Analytics Pvt Ltd
Designation:       Senior Engineer
Highest Education: B.Tech Computer Science
`

func TestParseFields(t *testing.T) {
	fields := ParseFields(sampleForm)

	assert.Equal(t, "C-2093", fields[FieldCandidateID])
	assert.Equal(t, "Asha Rao", fields[FieldCandidateName])
	assert.Equal(t, "14/02/1994", fields[FieldDateOfBirth])
	assert.Equal(t, "Acme Analytics Pvt Ltd", fields[FieldEmployer])
	assert.Equal(t, "Senior Engineer", fields[FieldRole])
	assert.Equal(t, "B.Tech Computer Science", fields[FieldEducation])
}

func TestParseFieldsAliases(t *testing.T) {
	fields := ParseFields("DOB: 01/01/1990\nRole - Analyst\nQualification: MBA")

	assert.Equal(t, "01/01/1990", fields[FieldDateOfBirth])
	assert.Equal(t, "Analyst", fields[FieldRole])
	assert.Equal(t, "MBA", fields[FieldEducation])
}

func TestParseFieldsFirstMatchWins(t *testing.T) {
	fields := ParseFields("Name: First Person\nName: Second Person")
	assert.Equal(t, "First Person", fields[FieldCandidateName])
}

func TestParseFieldsMissingAreEmpty(t *testing.T) {
	fields := ParseFields("Candidate ID: C-1")

	assert.Equal(t, "C-1", fields[FieldCandidateID])
	assert.Equal(t, "", fields[FieldCandidateName])
	assert.Equal(t, "", fields[FieldEmployer])
	assert.Len(t, fields, 6, "every key is always present")
}

func TestParseFieldsLabelsMustStartLine(t *testing.T) {
	fields := ParseFields("Father Name: Ram Rao")
	assert.Equal(t, "", fields[FieldCandidateName])
}

func TestAllEmpty(t *testing.T) {
	assert.True(t, AllEmpty(ParseFields("nothing recognizable here")))
	assert.False(t, AllEmpty(ParseFields("DOB: 01/01/1990")))
}
