package resourcedb

import "github.com/google/uuid"

// IDGenerator produces ids for resources created without a caller-supplied
// one. It lives behind an interface so tests can inject deterministic ids.
type IDGenerator interface {
	ID() string
}

// RandomIDGenerator generates random UUIDv4 ids.
type RandomIDGenerator struct{}

var _ IDGenerator = (*RandomIDGenerator)(nil)

func NewRandomIDGenerator() *RandomIDGenerator {
	return &RandomIDGenerator{}
}

func (g *RandomIDGenerator) ID() string {
	return uuid.NewString()
}
