package ooxcheck

// Configuration carries every knob the verification driver needs.
// All fields are required; the CLI layer is responsible for
// populating defaults before handing a Configuration to NewDriver.
type Configuration struct {
	FileName    string
	EntryPoint  string // "Class.method"

	MaximumDepth int

	VerifyEnsures     bool
	VerifyRequires    bool
	VerifyExceptional bool

	SymbolicNulls     bool
	SymbolicAliases   bool
	SymbolicArraySize int

	CacheFormulas bool

	ApplyPOR               bool
	ApplyLocalSolver        bool
	ApplyRandomInterleaving bool

	LogLevel int

	RunBenchmark bool
}

// DefaultConfiguration returns the configuration the CLI falls back to
// when a flag is not given.
func DefaultConfiguration() Configuration {
	return Configuration{
		MaximumDepth:            1000,
		VerifyEnsures:           true,
		VerifyRequires:          true,
		VerifyExceptional:       true,
		SymbolicNulls:           true,
		SymbolicAliases:         true,
		SymbolicArraySize:       3,
		CacheFormulas:           true,
		ApplyPOR:                true,
		ApplyLocalSolver:        true,
		ApplyRandomInterleaving: false,
		LogLevel:                0,
		RunBenchmark:            false,
	}
}
