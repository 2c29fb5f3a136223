package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://vtree.dev/docs/errors/"

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Tree documents (E001-E019)

	"E001": {
		Category: CategoryTree,
		Message:  "Invalid tree document",
		Detail:   "The document could not be parsed as YAML.",
		DocURL:   docBase + "E001",
	},
	"E002": {
		Category: CategoryTree,
		Message:  "Malformed tree",
		Detail:   "A sibling list has duplicate keys or mixes keyed and unkeyed children. Diffing such a tree has undefined results.",
		DocURL:   docBase + "E002",
	},
	"E003": {
		Category: CategoryTree,
		Message:  "Unknown node",
		Detail:   "A node must be a string (text), a mapping with exactly one tag, or a fragment/raw entry.",
		DocURL:   docBase + "E003",
	},
	"E004": {
		Category: CategoryTree,
		Message:  "Invalid attribute",
		Detail:   "Attribute values must be scalars. Properties and event options use the prop: and on: prefixes.",
		DocURL:   docBase + "E004",
	},

	// Wire protocol (E040-E059)

	"E040": {
		Category: CategoryProtocol,
		Message:  "Frame decode failed",
		Detail:   "A frame was truncated, too large or of an unknown type.",
		DocURL:   docBase + "E040",
	},
	"E041": {
		Category: CategoryProtocol,
		Message:  "Connection failed",
		Detail:   "Unable to establish a WebSocket connection to the live endpoint.",
		DocURL:   docBase + "E041",
	},

	// Journals (E060-E079)

	"E060": {
		Category: CategoryJournal,
		Message:  "Journal read failed",
		Detail:   "The journal file could not be read or ends in the middle of a frame.",
		DocURL:   docBase + "E060",
	},
	"E061": {
		Category: CategoryJournal,
		Message:  "Journal sequence gap",
		Detail:   "A patch frame does not follow the previous sequence number. The journal is incomplete.",
		DocURL:   docBase + "E061",
	},
	"E062": {
		Category: CategoryJournal,
		Message:  "Journal replay diverged",
		Detail:   "A recorded patch does not fit the tree rebuilt from the journal.",
		DocURL:   docBase + "E062",
	},

	// Configuration (E120-E139)

	"E120": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		Detail:   "vtree.json could not be read or parsed.",
		DocURL:   docBase + "E120",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Configuration not found",
		Detail:   "No vtree.json was found in the directory or any parent.",
		DocURL:   docBase + "E121",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		DocURL:   docBase + "E122",
	},

	// CLI (E140-E159)

	"E140": {
		Category: CategoryCLI,
		Message:  "Server failed",
		Detail:   "The live server stopped with an error.",
		DocURL:   docBase + "E140",
	},
	"E141": {
		Category: CategoryCLI,
		Message:  "File not found",
		DocURL:   docBase + "E141",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
