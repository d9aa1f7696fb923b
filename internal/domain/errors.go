package domain

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidTransition  = errors.New("status transition not allowed")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrBusinessNotFound = errors.New("business not found")
	ErrBusinessExists   = errors.New("business slug already taken")
	ErrStaffNotFound    = errors.New("staff member not found")
	ErrStaffExists      = errors.New("staff email already registered")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrOfferingNotFound = errors.New("service not found")

	ErrBookingNotFound  = errors.New("booking not found")
	ErrBookingConflict  = errors.New("staff member already booked for that time")
	ErrDuplicateBooking = errors.New("booking request already submitted")

	ErrPackNotFound        = errors.New("pack not found")
	ErrPackExists          = errors.New("pack slug already taken")
	ErrVersionNotFound     = errors.New("pack version not found")
	ErrVersionConflict     = errors.New("pack version was modified concurrently")
	ErrDraftExists         = errors.New("pack already has a draft version")
	ErrRolloutInProgress   = errors.New("another version of this pack is rolling out")
	ErrPinNotFound         = errors.New("pin not found")
	ErrNoPackVersion       = errors.New("no pack version applies")
	ErrSupportCaseNotFound = errors.New("support case not found")
	ErrSettingNotFound     = errors.New("setting not found")
)
