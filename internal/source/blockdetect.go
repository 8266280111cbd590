package source

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot page detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// challengeMaxBody bounds body-marker checks. Real result pages routinely
// embed captcha widgets (newsletter forms); challenge interstitials are
// small.
const challengeMaxBody = 32 * 1024

// DetectBlock checks a response for anti-bot interstitials. status and
// header may be zero for rendered pages, which are treated as HTML.
func DetectBlock(status int, header http.Header, body []byte) BlockType {
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		if header.Get("cf-ray") != "" || header.Get("cf-cache-status") != "" ||
			strings.EqualFold(header.Get("server"), "cloudflare") {
			return BlockCloudflare
		}
	}

	// Body markers only mean something on HTML; a JSON listing may mention
	// "captcha" in a title.
	if len(body) > challengeMaxBody || !isHTML(header) {
		return BlockNone
	}
	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return BlockCloudflare
	}

	if strings.Contains(lower, "captcha") {
		return BlockCaptcha
	}

	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return BlockJSShell
		}
	}

	return BlockNone
}

// isHTML reports whether the response declares an HTML body. A missing
// Content-Type counts as HTML.
func isHTML(header http.Header) bool {
	ct := strings.ToLower(header.Get("Content-Type"))
	return ct == "" || strings.Contains(ct, "html")
}
