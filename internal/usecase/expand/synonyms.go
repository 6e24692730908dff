package expand

// builtinSynonyms covers the industrial maintenance vocabulary the service
// most commonly sees. A dictionary file, when configured, replaces it.
var builtinSynonyms = map[string][]string{
	"equipment":   {"machinery", "device", "apparatus"},
	"maintenance": {"repair", "servicing", "upkeep"},
	"fault":       {"failure", "malfunction", "defect"},
	"inspection":  {"check", "examination", "audit"},
	"valve":       {"gate", "stopcock"},
	"pump":        {"compressor"},
	"pressure":    {"stress", "load"},
	"temperature": {"heat", "thermal"},
	"leak":        {"leakage", "seepage"},
	"vibration":   {"oscillation", "shaking"},
	"lubricant":   {"oil", "grease"},
	"bearing":     {"bushing"},
	"motor":       {"engine", "drive"},
	"safety":      {"protection", "hazard prevention"},
	"procedure":   {"process", "protocol", "workflow"},
	"manual":      {"handbook", "guide", "documentation"},
	"schedule":    {"plan", "timetable"},
	"replace":     {"swap", "exchange", "substitute"},
	"install":     {"mount", "fit", "set up"},
	"shutdown":    {"stop", "outage", "downtime"},
}
