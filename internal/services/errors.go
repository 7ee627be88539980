package services

import (
	"errors"

	"conti/internal/core"
)

var (
	ErrUnknownSplit  = errors.New("split must be 'equal' or 'exact'")
	ErrNoGroupMember = errors.New("group has no members to split between")
)

var validationErrors = []error{
	core.ErrInvalidAmount,
	core.ErrEmptyDescription,
	core.ErrEmptyPayer,
	core.ErrNoShares,
	core.ErrNegativeShare,
	core.ErrDuplicateShare,
	core.ErrSharesMismatch,
	core.ErrEmptyMember,
	core.ErrEmptyDisplayName,
	core.ErrEmptyGroupName,
	core.ErrEmptyTitle,
	core.ErrNegativePoints,
	core.ErrTooManyPoints,
	core.ErrNoParticipants,
	core.ErrNameTooLong,
	core.ErrDescriptionTooLong,
	ErrUnknownSplit,
	ErrNoGroupMember,
}

// IsValidation reports whether err was caused by bad client input.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
