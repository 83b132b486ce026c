// Package validator checks option structs tagged with `validate:"..."` rules.
// Field names in errors come from the `config` tag when present so a failure
// points at the config key to fix.
package validator

type Validator interface {
	Validate(data any) error
}
