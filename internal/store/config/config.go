package config

type Config struct {
	// DBDsn selects the Postgres backend when set.
	DBDsn string
	// DataDir selects the JSON file backend when set and DBDsn is empty.
	DataDir string
}
