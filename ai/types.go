package ai

// EntityTypes defines the valid categories for extracted entities.
var EntityTypes = []string{
	"person",
	"organization",
	"place",
	"project",
	"product",
	"event",
	"document",
	"other",
}
