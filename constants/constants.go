package constants

const (
	// binlog files start with this magic number
	BinlogMagic = "\xfebin"

	DefaultSchemaCacheCapacity = 15
	SchemaTokenSeparator       = "--"

	DefaultChannel      = "default"
	DefaultMySQLPort    = 3306
	DefaultSchemaPrefix = "binlogdir:schema:"
	DefaultSchemaTable  = "binlogdir_schema_snapshots"

	EnvPrefix    = "BINLOGDIR"
	ConfigFolder = "CONFIG_FOLDER"
	LogLevel     = "LOG_LEVEL"
	StateFile    = "state"
	SnapshotFile = "snapshot"
	StatsFile    = "stats"
)

// CharsetFallback values
const (
	CharsetFallbackRaw  = "raw"
	CharsetFallbackUTF8 = "utf8"
)
