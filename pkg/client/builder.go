package client

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Stellar contract addresses are 56-character strkeys: a C prefix followed by
// 55 base32 characters.
var contractIDPattern = regexp.MustCompile(`^C[A-Z2-7]{55}$`)

const maxNameLength = 100

// Registration is a validated contract registration request.
type Registration struct {
	ContractID  string
	Name        string
	Description string
}

// RegistrationBuilder provides a fluent interface for constructing contract
// registrations. It accumulates validation errors and reports them on Build.
//
// Example:
//
//	reg, err := client.NewRegistration("CCFZ...").
//	    Name("AMM Pool").
//	    Description("Main liquidity pool").
//	    Build()
type RegistrationBuilder struct {
	reg *Registration
	err error
}

// NewRegistration creates a builder for the given Stellar contract address.
func NewRegistration(contractID string) *RegistrationBuilder {
	return &RegistrationBuilder{
		reg: &Registration{ContractID: contractID},
	}
}

// Name sets the human-readable contract name.
func (b *RegistrationBuilder) Name(name string) *RegistrationBuilder {
	if b.err != nil {
		return b
	}
	b.reg.Name = name
	return b
}

// Description sets the optional free-form description.
func (b *RegistrationBuilder) Description(description string) *RegistrationBuilder {
	if b.err != nil {
		return b
	}
	b.reg.Description = description
	return b
}

// Build validates and returns the constructed registration.
// Returns an error if any required fields are missing or invalid.
func (b *RegistrationBuilder) Build() (*Registration, error) {
	if b.err != nil {
		return nil, b.err
	}

	if err := validateRegistration(b.reg); err != nil {
		return nil, err
	}

	return b.reg, nil
}

func validateRegistration(reg *Registration) error {
	if reg.ContractID == "" {
		return fmt.Errorf("contract ID is required")
	}

	if !contractIDPattern.MatchString(reg.ContractID) {
		return fmt.Errorf("invalid contract address: %q", reg.ContractID)
	}

	if reg.Name == "" {
		return fmt.Errorf("name is required")
	}

	if utf8.RuneCountInString(reg.Name) > maxNameLength {
		return fmt.Errorf("name exceeds %d characters", maxNameLength)
	}

	return nil
}
