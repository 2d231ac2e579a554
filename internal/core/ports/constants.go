package ports

const (
	// SessionKeyWeight is the signing weight of the service-held session key in every app session.
	SessionKeyWeight = 50

	DefaultSessionQuorum    = SessionKeyWeight
	DefaultSessionChallenge = 3600
	DefaultSessionProtocol  = "NitroRPC/0.2"

	GasLimitBufferPercent = 20
)
