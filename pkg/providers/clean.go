package providers

import (
	"regexp"
	"strings"
)

// Prefix chatter that vision-language models like to wrap around a
// transcription. Compiled once; CleanResponse runs on every model reply.
var prefixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(the\s+)?text\s+in\s+(the\s+)?image\s+(is|says|reads):?\s*`),
	regexp.MustCompile(`(?i)^(the\s+)?image\s+contains\s+(the\s+following\s+)?text:?\s*`),
	regexp.MustCompile(`(?i)^here'?s?\s+(the\s+)?text\s+(extracted\s+)?from\s+(the\s+)?image:?\s*`),
	regexp.MustCompile(`(?i)^(i\s+can\s+see\s+)?text\s+(that\s+says|reading):?\s*`),
	regexp.MustCompile(`(?i)^certainly!\s+here'?s?\s+(the\s+)?text\s+(extracted\s+)?from\s+(the\s+)?image:?\s*`),
	regexp.MustCompile(`(?i)^here'?s?\s+the\s+extracted\s+text\s+from\s+(the\s+)?image:?\s*`),
}

// CleanResponse strips conversational framing from a model reply so only the
// transcription remains.
func CleanResponse(response string) string {
	response = strings.TrimSpace(response)

	for _, re := range prefixPatterns {
		response = strings.TrimSpace(re.ReplaceAllString(response, ""))
	}

	response = strings.Trim(response, `"'`)

	if strings.HasPrefix(response, "```") && strings.HasSuffix(response, "```") {
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
		response = strings.TrimSpace(response)
	}

	return response
}

// TruncateBody shortens a response body for error messages so logs stay
// readable while keeping enough context to debug.
func TruncateBody(body []byte, maxLen ...int) string {
	limit := 500
	if len(maxLen) > 0 && maxLen[0] > 0 {
		limit = maxLen[0]
	}
	s := string(body)
	if len(s) > limit {
		return s[:limit] + "... (truncated)"
	}
	return s
}
