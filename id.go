package bystander

import "github.com/xraph/bystander/id"

// ID is the primary identifier type for all Bystander entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
