package config

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "CLEARLEDGER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "CLEARLEDGER_DB_DSN"
	EnvDBHost = "CLEARLEDGER_DB_HOST"
	EnvDBUser = "CLEARLEDGER_DB_USER"
	EnvDBName = "CLEARLEDGER_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
