package ports

import "github.com/reglet-dev/valbridge/domain/entities"

// ConfigValidator validates a decoded configuration document against a schema.
type ConfigValidator interface {
	// Validate checks doc and reports every violation found.
	Validate(doc any) (*entities.ValidationResult, error)
}
