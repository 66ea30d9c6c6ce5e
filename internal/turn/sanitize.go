package turn

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// uuidPattern matches a canonical 8-4-4-4-12 hexadecimal UUID.
	uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

	// leadingUUIDPattern matches a UUID plus trailing whitespace at the
	// start of a reply.
	leadingUUIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\s*`)

	// leadingHexRunPattern catches malformed or concatenated identifier
	// echoes the exact UUID shape misses: any leading run of 36 or more
	// hex/hyphen characters.
	leadingHexRunPattern = regexp.MustCompile(`^[0-9a-fA-F-]{36,}\s*`)
)

// Sanitize removes leaked session and tracking identifiers from a model
// reply. Some models echo the memory key or an internal tracking id into
// the generated text; this is display-layer cleanup only and never
// touches the stored conversation context.
//
// The passes, in order: strip a leading session id or UUID-shaped token
// with its trailing whitespace; remove every occurrence of the session id
// and every UUID-shaped substring anywhere in the text; strip any leading
// run of 36+ hex/hyphen characters; trim surrounding whitespace.
// Idempotent: sanitizing a sanitized reply is a no-op.
func Sanitize(text, sessionID string) string {
	if text == "" {
		return ""
	}

	out := stripLeadingIdentifier(text, sessionID)
	if strings.TrimSpace(sessionID) != "" {
		out = strings.ReplaceAll(out, sessionID, "")
	}
	out = uuidPattern.ReplaceAllString(out, "")
	out = leadingHexRunPattern.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// stripLeadingIdentifier removes the exact session id, or failing that
// any canonical UUID, from the start of the trimmed text, together with
// the whitespace that follows it. Text with no leading identifier is
// returned unchanged.
func stripLeadingIdentifier(text, sessionID string) string {
	trimmed := strings.TrimSpace(text)
	if sessionID != "" && strings.HasPrefix(trimmed, sessionID) {
		return strings.TrimLeftFunc(trimmed[len(sessionID):], unicode.IsSpace)
	}
	if loc := leadingUUIDPattern.FindStringIndex(trimmed); loc != nil {
		return trimmed[loc[1]:]
	}
	return text
}
