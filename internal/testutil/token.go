package testutil

// FixedTokenGenerator generates the same request token every time.
//
// Request tokens only appear in logs, so scenarios share one token and
// golden traces stay byte-identical across runs.
//
// Thread-safety: FixedTokenGenerator is stateless and safe for concurrent use.
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a fixed token generator.
// If token is empty, Generate returns "test-request".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-request"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token. Implements engine.TokenGenerator.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}
