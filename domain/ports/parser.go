package ports

import "github.com/reglet-dev/valbridge/domain/entities"

// ConfigParser parses a raw configuration document into a Config.
type ConfigParser interface {
	// Parse unmarshals bytes into a Config. Fields absent from data keep the
	// values already present in base.
	Parse(data []byte, base entities.Config) (*entities.Config, error)

	// Decode unmarshals bytes into a generic document for schema validation.
	Decode(data []byte) (any, error)
}
