package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type gatewayInput struct {
	GwID   string `json:"gw_id" validate:"required,min=4,max=64"`
	Email  string `json:"email" validate:"email"`
	MgmtIP string `json:"mgmt_ip" validate:"ip"`
	MAC    string `json:"mac_address" validate:"mac"`
}

func TestValidateAcceptsGoodInput(t *testing.T) {
	v := NewValidator()

	err := v.Validate(&gatewayInput{
		GwID:   "gw-lobby",
		Email:  "admin@example.com",
		MgmtIP: "10.0.0.2",
		MAC:    "AA:BB:CC:00:11:22",
	})
	assert.NoError(t, err)
}

func TestValidateRequired(t *testing.T) {
	v := NewValidator()

	err := v.Validate(&gatewayInput{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "gw_id")
}

func TestValidateFormats(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name  string
		input gatewayInput
		field string
	}{
		{"bad email", gatewayInput{GwID: "gw-1x", Email: "nope"}, "email"},
		{"bad ip", gatewayInput{GwID: "gw-1x", MgmtIP: "999.0.0.1"}, "mgmt_ip"},
		{"bad mac", gatewayInput{GwID: "gw-1x", MAC: "zz:zz"}, "mac_address"},
		{"too short", gatewayInput{GwID: "gw"}, "gw_id"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(&tc.input)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestValidateEmptyOptionalFieldsPass(t *testing.T) {
	v := NewValidator()

	// Format rules only apply to non-empty values.
	err := v.Validate(&gatewayInput{GwID: "gw-lobby"})
	assert.NoError(t, err)
}
