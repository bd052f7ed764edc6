package ports

// Tokenizer converts between session ids and the value stored in the cookie
type Tokenizer interface {
	SessionToToken(sessionID string) (string, error)
	TokenToSession(token string) (string, error)
}
