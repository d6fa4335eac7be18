package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces anything that looks like a credential.
const RedactedPlaceholder = "[REDACTED]"

// valuePatterns match credentials embedded in free text such as error
// messages, request dumps or URLs.
var valuePatterns = []*regexp.Regexp{
	// X-Api-Key: <key> as it appears in dumped requests.
	regexp.MustCompile(`(?i)(x-api-key\s*[:=]\s*[^\s,;"']+)`),
	// REMOVE_BG_API_KEY=... / VITE_REMOVE_BG_API_KEY=... in echoed env.
	regexp.MustCompile(`(?i)((?:vite_)?remove_bg_api_key\s*[:=]\s*[^\s,;"']+)`),
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`),
	regexp.MustCompile(`(?i)([?&](?:api_?key|token)=[^&\s]+)`),
	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(secret\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(api_?key\s*[:=]\s*[^\s,;]{8,})`),
}

// sensitiveKeyFragments mark a field or header name whose value is always
// dropped, regardless of what the value looks like.
var sensitiveKeyFragments = []string{
	"REMOVE_BG_API_KEY",
	"X-API-KEY",
	"API_KEY",
	"APIKEY",
	"AUTHORIZATION",
	"PASSWORD",
	"SECRET",
	"TOKEN",
}

// RedactSensitiveData returns value with every recognised credential replaced
// by RedactedPlaceholder.
//
//	RedactSensitiveData("POST /v1.0/removebg X-Api-Key: abcd1234")
//	// "POST /v1.0/removebg [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}
	result := value
	for _, pattern := range valuePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// RedactField redacts fieldValue outright when fieldName is sensitive and
// otherwise scans the value itself.
func RedactField(fieldName, fieldValue string) string {
	if IsSensitiveField(fieldName) {
		return RedactedPlaceholder
	}
	return RedactSensitiveData(fieldValue)
}

// IsSensitiveField reports whether a field or header name carries a secret.
// Matching is case-insensitive and treats '-' and '_' alike.
func IsSensitiveField(fieldName string) bool {
	name := strings.ToUpper(fieldName)
	alt := strings.ReplaceAll(name, "_", "-")
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(name, fragment) || strings.Contains(alt, fragment) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData reports whether any credential pattern matches value.
func ContainsSensitiveData(value string) bool {
	if value == "" {
		return false
	}
	for _, pattern := range valuePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}
