package common

// Header names shared by the HTTP API and the remittance client.
const (
	AuthorizationHeaderName  = "Authorization"
	IdempotencyKeyHeaderName = "Idempotency-Key"
	SharedSecretHeaderName   = "X-Shared-Secret"
	SourceHeaderName         = "X-Source"
)
