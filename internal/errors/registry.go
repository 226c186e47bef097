package errors

type template struct {
	Category   Category
	Message    string
	Suggestion string
}

var registry = map[string]template{
	// Configuration (E120-E139)
	"E120": {
		Category: CategoryConfig,
		Message:  "Failed to read configuration",
	},
	"E121": {
		Category:   CategoryConfig,
		Message:    "Configuration file not found",
		Suggestion: "Create isomorph.json or run without --config to use defaults",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
	},
	"E123": {
		Category:   CategoryConfig,
		Message:    "Failed to load environment file",
		Suggestion: "Check the .env syntax: one KEY=value per line",
	},

	// CLI (E140-E159)
	"E140": {
		Category:   CategoryCLI,
		Message:    "Unknown application",
		Suggestion: "Available applications are \"counter\" and \"race\"",
	},
	"E141": {
		Category: CategoryCLI,
		Message:  "Render failed",
	},
	"E142": {
		Category:   CategoryCLI,
		Message:    "Asset build failed",
		Suggestion: "Check build.public exists and build.output is writable",
	},
	"E143": {
		Category:   CategoryCLI,
		Message:    "Asset upload failed",
		Suggestion: "Check the bucket name, region and AWS credentials",
	},
	"E144": {
		Category:   CategoryCLI,
		Message:    "Unknown template",
		Suggestion: "Available templates are \"counter\" and \"full\"",
	},

	// Server (E160-E179)
	"E160": {
		Category:   CategoryServer,
		Message:    "Failed to listen",
		Suggestion: "Check that the address is free and the port is allowed",
	},
	"E161": {
		Category:   CategoryServer,
		Message:    "Asset source unavailable",
		Suggestion: "Check assets.dir exists or the S3 bucket is reachable",
	},
	"E162": {
		Category: CategoryServer,
		Message:  "Shutdown did not complete",
	},
}

// Lookup reports whether code is registered and returns its message.
func Lookup(code string) (string, bool) {
	t, ok := registry[code]
	return t.Message, ok
}
