// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package papp

import (
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/papphost/internal/endpoint"
)

// FilterKey is the endpoint filter key that names the owning papp.
const FilterKey = "plugin"

// ValidateNamespace checks that every filter routes to name and every tuple
// name starts with name. The first offender is reported.
func ValidateNamespace(name string, filters []endpoint.Filter, tupleNames []string) error {
	for _, f := range filters {
		if err := validateFilter(name, f); err != nil {
			return err
		}
	}
	for _, t := range tupleNames {
		if err := validateTupleName(name, t); err != nil {
			return err
		}
	}
	return nil
}

func validateFilter(name string, f endpoint.Filter) error {
	owner, ok := f[FilterKey]
	if ok && owner == name {
		return nil
	}
	return oops.Code(CodeNamespaceViolation).In("papp").
		With("papp", name).
		With("filter", f.String()).
		Hint("every endpoint filter must contain " + FilterKey + "=" + name).
		Wrapf(ErrNamespaceViolation, "papp %s registered endpoint outside its namespace", name)
}

func validateTupleName(name, tupleName string) error {
	if strings.HasPrefix(tupleName, name) {
		return nil
	}
	return oops.Code(CodeNamespaceViolation).In("papp").
		With("papp", name).
		With("tuple", tupleName).
		Hint("tuple names must start with " + name).
		Wrapf(ErrNamespaceViolation, "papp %s registered tuple %s outside its namespace", name, tupleName)
}
