package service

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"bastion/internal/authn/models"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/secrets"
)

// ValidatePassword lists every rule of the password policy that pw breaks.
func (s *Service) ValidatePassword(pw string) models.PasswordCheck {
	p := s.password
	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	var errs []string
	if utf8.RuneCountInString(pw) < p.MinLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters", p.MinLength))
	}
	if p.RequireUppercase && !upper {
		errs = append(errs, "password must contain an uppercase letter")
	}
	if p.RequireLowercase && !lower {
		errs = append(errs, "password must contain a lowercase letter")
	}
	if p.RequireNumbers && !digit {
		errs = append(errs, "password must contain a digit")
	}
	if p.RequireSymbols && !symbol {
		errs = append(errs, "password must contain a special character")
	}
	return models.PasswordCheck{Valid: len(errs) == 0, Errors: errs}
}

// HashPassword checks pw against the policy and returns its bcrypt hash.
func (s *Service) HashPassword(pw string) (string, error) {
	if check := s.ValidatePassword(pw); !check.Valid {
		return "", dErrors.New(dErrors.CodeValidation, check.Errors[0])
	}
	return secrets.Hash(pw, s.bcryptCost)
}
