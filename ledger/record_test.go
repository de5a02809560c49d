package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveApprovalID(t *testing.T) {
	a := DeriveApprovalID("R1", "U1", "U2", 1700000000)
	b := DeriveApprovalID("R1", "U1", "U2", 1700000000)
	assert.Equal(t, a, b, "derivation is deterministic")
	assert.Len(t, a, 32)
	assert.Regexp(t, "^[0-9a-f]{32}$", a)

	// Any component changing changes the id.
	assert.NotEqual(t, a, DeriveApprovalID("R2", "U1", "U2", 1700000000))
	assert.NotEqual(t, a, DeriveApprovalID("R1", "U9", "U2", 1700000000))
	assert.NotEqual(t, a, DeriveApprovalID("R1", "U1", "U9", 1700000000))
	assert.NotEqual(t, a, DeriveApprovalID("R1", "U1", "U2", 1700000001))
}

func TestRecordInputValidate(t *testing.T) {
	valid := RecordInput{RequestID: "R1", RequesterID: "U1", OwnerID: "U2", RequestType: RequestTypeExcel}
	assert.NoError(t, valid.Validate())

	empty := valid
	empty.LicenceKey = ""
	assert.NoError(t, empty.Validate(), "licence key may be empty")

	bad := valid
	bad.RequestType = "sftp"
	assert.ErrorIs(t, bad.Validate(), ErrValidation)

	blank := valid
	blank.RequestID = "   "
	assert.ErrorIs(t, blank.Validate(), ErrValidation)
}
