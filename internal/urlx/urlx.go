package urlx

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"media-pipeline/pkg/models"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// Domains fully handled by the primary extractor
var ytdlpOnlyDomains = []string{
	"youtube.com", "youtu.be",
}

// Domains only the gallery extractor understands
var galleryDlOnlyDomains = []string{
	"2ch.su", "35photo.pro", "behoimi.org", "4archive.org", "8chan.moe",
	"agn.ph", "arca.live", "architizer.com", "aryion.com",
	"catbox.moe", "civitai.com", "desktopography.net",
	"everia.club", "fapello.com", "furry34.com",
	"gelbooru.com", "girlswithmuscle.com", "itaku.ee", "kemono.cr",
	"kemono.party", "coomer.party", "leakgallery.com", "myportfolio.com",
	"nekohouse.su", "photovogue.com", "weasyl.com", "wikifeet.com",
	"wallhaven.cc",
}

// Path prefixes routed to the gallery extractor regardless of domain lists
var galleryDlOnlyPaths = []string{
	"vk.com/wall-",
	"vk.com/album-",
}

// Domains where the primary extractor is tried first with a gallery fallback
var galleryDlFallbackDomains = []string{
	"instagram.com",
}

// Domains known to embed session or tracking junk in query parameters
var cleanQueryDomains = []string{
	"tiktok.com", "vimeo.com", "twitch.tv",
	"instagram.com", "ig.me", "dailymotion.com",
	"twitter.com", "x.com",
	"ok.ru", "mail.ru", "rutube.ru", "bilibili.com",
	"fb.watch", "9gag.com", "streamable.com",
	"bitchute.com", "rumble.com", "aparat.com", "nicovideo.jp",
}

// ExtractURLs returns all http(s) URLs found in free text
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// ExtractDomain returns the lowercased registrable domain of a URL.
// Falls back to the raw host when the public suffix list has no answer.
func ExtractDomain(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// Host returns the full lowercased host of a URL, subdomains included
func Host(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// IsValid reports whether the string is an absolute http(s) URL
func IsValid(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// matchesDomain reports whether host equals or is a subdomain of any entry
func matchesDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Normalize strips query parameters for domains known to carry tracking
// junk. Idempotent: normalizing an already-normalized URL is a no-op.
func Normalize(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}

	host := strings.ToLower(parsed.Hostname())
	if !matchesDomain(host, cleanQueryDomains) {
		return rawURL
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}

// CleanPlaylistURL reduces a playlist URL to its identifying parameter
func CleanPlaylistURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	list := parsed.Query().Get("list")
	if list == "" {
		return rawURL
	}

	q := url.Values{}
	q.Set("list", list)
	parsed.RawQuery = q.Encode()
	parsed.Fragment = ""
	return parsed.String()
}

// Route selects the extraction engine for a URL. Rule sets are checked
// in order; first match wins, default is the primary extractor.
func Route(rawURL string) models.EngineDecision {
	host := Host(rawURL)
	domain := ExtractDomain(rawURL)

	decision := models.EngineDecision{Engine: models.EngineYtdlp, Domain: domain}

	if matchesDomain(host, ytdlpOnlyDomains) {
		return decision
	}

	if matchesDomain(host, galleryDlOnlyDomains) {
		decision.Engine = models.EngineGalleryDl
		return decision
	}

	stripped := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	stripped = strings.TrimPrefix(stripped, "www.")
	for _, prefix := range galleryDlOnlyPaths {
		if strings.HasPrefix(stripped, prefix) {
			decision.Engine = models.EngineGalleryDl
			return decision
		}
	}

	if matchesDomain(host, galleryDlFallbackDomains) {
		decision.Engine = models.EngineYtdlpGalleryDlFlbk
		return decision
	}

	return decision
}
