package service

import (
	"errors"

	"flowershop/internal/domain"
	"flowershop/internal/repository"
)

// isDomainErr reports whether err already carries one of the domain error kinds.
func isDomainErr(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInsufficientStock) ||
		errors.Is(err, domain.ErrReferentialIntegrity) ||
		errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrPersistence)
}

// persistence wraps unclassified storage errors; domain errors pass through untouched.
func persistence(op string, err error) error {
	if err == nil || isDomainErr(err) {
		return err
	}
	return &domain.PersistenceError{Op: op, Err: err}
}

// notFoundOr maps repository.ErrNotFound to a typed NotFoundError.
func notFoundOr(err error, entity string, id any, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &domain.NotFoundError{Entity: entity, ID: id}
	}
	return persistence(op, err)
}

// page converts 1-based page/pageSize into offset/limit with the defaults of the listing API.
func page(p, size int) (offset, limit int) {
	if p < 1 {
		p = 1
	}
	if size < 1 {
		size = 10
	}
	if size > 100 {
		size = 100
	}
	return (p - 1) * size, size
}
