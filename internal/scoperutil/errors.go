package scoperutil

import "strings"

// FlattenErrors converts a slice of errors to a slice of strings.
func FlattenErrors(errs ...error) []string {
	if len(errs) <= 0 {
		return nil
	}
	strs := make([]string, len(errs))
	for i := range errs {
		strs[i] = errs[i].Error()
	}
	return strs
}

// JoinErrors renders errors on a single line, separated by semicolons. It
// matches the signature of multierror.ErrorFormatFunc.
func JoinErrors(errs []error) string {
	return strings.Join(FlattenErrors(errs...), "; ")
}
