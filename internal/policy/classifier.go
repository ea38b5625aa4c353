package policy

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"golang.org/x/net/publicsuffix"

	"media-pipeline/pkg/models"
)

var redirectParams = []string{
	"url", "u", "q", "redirect", "redir",
	"target", "to", "dest", "destination", "r", "s",
}

var embeddedURLPattern = regexp.MustCompile(`https?://[^\s]+`)

// compiled holds one immutable generation of the loaded lists. Reload
// swaps the whole generation so concurrent classifications observe
// either the old or the new set, never a mix.
type compiled struct {
	blockDomains map[string]struct{}
	keywordCount int
	blockPattern *regexp.Regexp
	allowPattern *regexp.Regexp
}

// Classifier screens URLs and extracted metadata against domain and
// keyword block lists.
type Classifier struct {
	logger       zerolog.Logger
	domainsFile  string
	keywordsFile string
	allowDomains map[string]struct{}
	greyDomains  map[string]struct{}
	allowWords   []string
	lists        atomic.Pointer[compiled]
}

// NewClassifier creates a classifier and loads the initial lists.
// Missing list files leave the corresponding set empty.
func NewClassifier(cfg *models.Config) *Classifier {
	c := &Classifier{
		logger:       zerolog.New(os.Stdout).With().Timestamp().Str("component", "policy").Logger(),
		domainsFile:  cfg.Policy.DomainsFile,
		keywordsFile: cfg.Policy.KeywordsFile,
		allowDomains: toSet(cfg.Policy.AllowDomains),
		greyDomains:  toSet(cfg.Policy.GreyDomains),
		allowWords:   cfg.Policy.AllowWords,
	}
	c.Reload()
	return c
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			set[item] = struct{}{}
		}
	}
	return set
}

// Reload re-reads the block lists from disk and atomically swaps them in.
// Returns the loaded counts.
func (c *Classifier) Reload() (domains int, keywords int) {
	blockDomains := loadLines(c.domainsFile, c.logger)
	blockKeywords := loadLinesList(c.keywordsFile, c.logger)

	next := &compiled{
		blockDomains: blockDomains,
		keywordCount: len(blockKeywords),
		blockPattern: compileKeywordPattern(blockKeywords),
		allowPattern: compileKeywordPattern(c.allowWords),
	}
	c.lists.Store(next)

	c.logger.Info().
		Int("block_domains", len(blockDomains)).
		Int("block_keywords", len(blockKeywords)).
		Msg("Policy lists loaded")

	return len(blockDomains), len(blockKeywords)
}

func loadLines(path string, logger zerolog.Logger) map[string]struct{} {
	set := make(map[string]struct{})
	file, err := os.Open(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("Failed to load policy list")
		return set
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line != "" {
			set[line] = struct{}{}
		}
	}
	return set
}

func loadLinesList(path string, logger zerolog.Logger) []string {
	set := loadLines(path, logger)
	out := make([]string, 0, len(set))
	for line := range set {
		out = append(out, line)
	}
	return out
}

// compileKeywordPattern builds a single whole-word alternation. Word
// boundaries tolerate keywords split by non-alphanumeric separators,
// so "key word" matches "key_word" and "key-word" too.
func compileKeywordPattern(keywords []string) *regexp.Regexp {
	var alts []string
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		words := strings.Fields(kw)
		escaped := make([]string, len(words))
		for i, w := range words {
			escaped[i] = regexp.QuoteMeta(w)
		}
		alts = append(alts, strings.Join(escaped, `[^a-z0-9]+`))
	}
	if len(alts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)(^|[^a-z0-9])(` + strings.Join(alts, "|") + `)($|[^a-z0-9])`)
}

// unwrapRedirect resolves up to two levels of redirect-style URLs that
// embed the real target in a query parameter.
func unwrapRedirect(rawURL string) string {
	current := rawURL
	for range 2 {
		parsed, err := url.Parse(current)
		if err != nil {
			return current
		}
		query := parsed.Query()

		var candidate string
		for _, key := range redirectParams {
			for _, value := range query[key] {
				if unescaped, err := url.QueryUnescape(value); err == nil {
					value = unescaped
				}
				if m := embeddedURLPattern.FindString(value); m != "" {
					candidate = m
					break
				}
			}
			if candidate != "" {
				break
			}
		}
		if candidate == "" {
			return current
		}
		current = candidate
	}
	return current
}

// domainParts returns the registrable domain and every subdomain suffix
// chain above it, e.g. a.b.example.com -> [example.com, b.example.com,
// a.b.example.com].
func domainParts(rawURL string) []string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return []string{strings.ToLower(rawURL)}
	}
	host := strings.ToLower(parsed.Hostname())

	base, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return []string{host}
	}

	parts := []string{base}
	if host != base && strings.HasSuffix(host, "."+base) {
		sub := strings.TrimSuffix(host, "."+base)
		labels := strings.Split(sub, ".")
		for i := len(labels) - 1; i >= 0; i-- {
			parts = append(parts, strings.Join(labels[i:], ".")+"."+base)
		}
	}
	return parts
}

func inSet(parts []string, set map[string]struct{}) bool {
	for _, p := range parts {
		if _, ok := set[p]; ok {
			return true
		}
	}
	return false
}

// Classify screens a URL plus optional metadata text fields. Precedence:
// allow-listed domains always pass; the domain block set is checked
// next; grey-listed domains skip keyword scanning; allow-keywords veto
// any keyword match. Empty text fields never match.
func (c *Classifier) Classify(rawURL, title, description, tags string) models.PolicyVerdict {
	lists := c.lists.Load()
	if lists == nil {
		return models.PolicyVerdict{}
	}

	clean := strings.ToLower(unwrapRedirect(rawURL))
	parts := domainParts(clean)

	if inSet(parts, c.allowDomains) {
		return models.PolicyVerdict{Reason: fmt.Sprintf("domain allow-listed: %s", parts[0])}
	}

	if inSet(parts, lists.blockDomains) {
		c.logger.Info().Strs("domain_parts", parts).Msg("Blocked by domain list")
		return models.PolicyVerdict{
			Blocked: true,
			Reason:  fmt.Sprintf("domain in block list: %s", parts[0]),
		}
	}

	// Grey-listed domains host arbitrary user content; their titles
	// trip keyword matches too easily, so only the domain sets apply.
	if inSet(parts, c.greyDomains) || lists.blockPattern == nil {
		return models.PolicyVerdict{}
	}

	title = strings.ToLower(title)
	description = strings.ToLower(description)
	tags = strings.ReplaceAll(strings.ToLower(tags), "_", " ")

	combined := strings.Join([]string{title, description, tags, clean}, " ")
	if strings.TrimSpace(combined) == "" {
		return models.PolicyVerdict{}
	}

	if lists.allowPattern != nil && lists.allowPattern.MatchString(combined) {
		return models.PolicyVerdict{Reason: "allow keyword matched"}
	}

	if match := lists.blockPattern.FindStringSubmatch(combined); match != nil {
		c.logger.Info().Str("keyword", match[2]).Msg("Blocked by keyword")
		return models.PolicyVerdict{
			Blocked: true,
			Reason:  fmt.Sprintf("keyword matched: %s", match[2]),
		}
	}

	return models.PolicyVerdict{}
}

// KeywordCount reports how many block keywords are currently loaded
func (c *Classifier) KeywordCount() int {
	if lists := c.lists.Load(); lists != nil {
		return lists.keywordCount
	}
	return 0
}
