package policy

import (
	"os"
	"path/filepath"
	"testing"

	"media-pipeline/pkg/models"
)

func writeList(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write list file: %v", err)
	}
	return path
}

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	dir := t.TempDir()

	cfg := &models.Config{}
	cfg.Policy.DomainsFile = writeList(t, dir, "domains.txt",
		"badsite.example", "nasty.test")
	cfg.Policy.KeywordsFile = writeList(t, dir, "keywords.txt",
		"forbidden", "bad phrase")
	cfg.Policy.AllowDomains = []string{"youtube.com", "vimeo.com"}
	cfg.Policy.GreyDomains = []string{"reddit.com", "x.com"}
	cfg.Policy.AllowWords = []string{"forbiddenfruit"}

	return NewClassifier(cfg)
}

func TestAllowListedDomainNeverBlocked(t *testing.T) {
	c := newTestClassifier(t)

	// Even with block keywords present in every text field
	verdict := c.Classify(
		"https://www.youtube.com/watch?v=abc",
		"forbidden forbidden", "bad phrase", "forbidden")

	if verdict.Blocked {
		t.Errorf("Allow-listed domain was blocked: %s", verdict.Reason)
	}
}

func TestBlockedDomain(t *testing.T) {
	c := newTestClassifier(t)

	verdict := c.Classify("https://badsite.example/video/1", "", "", "")
	if !verdict.Blocked {
		t.Error("Expected block-listed domain to be blocked")
	}
}

func TestBlockedSubdomain(t *testing.T) {
	c := newTestClassifier(t)

	verdict := c.Classify("https://cdn.media.badsite.example/v/1", "", "", "")
	if !verdict.Blocked {
		t.Error("Expected subdomain of block-listed domain to be blocked")
	}
}

func TestKeywordMatchInTitle(t *testing.T) {
	c := newTestClassifier(t)

	verdict := c.Classify("https://neutral.example/v/1", "totally forbidden clip", "", "")
	if !verdict.Blocked {
		t.Error("Expected keyword in title to block")
	}
}

func TestKeywordWholeWordOnly(t *testing.T) {
	c := newTestClassifier(t)

	// "forbidden" embedded inside a longer word must not match
	verdict := c.Classify("https://neutral.example/v/1", "unforbiddenish content", "", "")
	if verdict.Blocked {
		t.Errorf("Substring match should not block: %s", verdict.Reason)
	}
}

func TestKeywordSplitBySeparators(t *testing.T) {
	c := newTestClassifier(t)

	verdict := c.Classify("https://neutral.example/bad_phrase/1", "", "", "")
	if !verdict.Blocked {
		t.Error("Expected separator-split keyword in URL to block")
	}
}

func TestAllowKeywordVetoesMatch(t *testing.T) {
	c := newTestClassifier(t)

	verdict := c.Classify("https://neutral.example/v/1", "forbiddenfruit recipe", "", "")
	if verdict.Blocked {
		t.Errorf("Allow keyword should veto: %s", verdict.Reason)
	}
}

func TestGreyListedDomainSkipsKeywords(t *testing.T) {
	c := newTestClassifier(t)

	verdict := c.Classify("https://www.reddit.com/r/sub/1", "forbidden title", "", "")
	if verdict.Blocked {
		t.Errorf("Grey-listed domain should skip keyword scan: %s", verdict.Reason)
	}
}

func TestEmptyFieldsNotBlocked(t *testing.T) {
	c := newTestClassifier(t)

	verdict := c.Classify("https://neutral.example/v/1", "", "", "")
	if verdict.Blocked {
		t.Errorf("Empty fields should not block: %s", verdict.Reason)
	}
}

func TestRedirectUnwrapping(t *testing.T) {
	c := newTestClassifier(t)

	wrapped := "https://redirect.example/go?url=https%3A%2F%2Fbadsite.example%2Fv%2F1"
	verdict := c.Classify(wrapped, "", "", "")
	if !verdict.Blocked {
		t.Error("Expected redirect-wrapped blocked domain to be blocked")
	}
}

func TestReloadSwapsLists(t *testing.T) {
	dir := t.TempDir()

	cfg := &models.Config{}
	cfg.Policy.DomainsFile = writeList(t, dir, "domains.txt", "first.example")
	cfg.Policy.KeywordsFile = writeList(t, dir, "keywords.txt", "alpha")

	c := NewClassifier(cfg)

	if v := c.Classify("https://first.example/1", "", "", ""); !v.Blocked {
		t.Fatal("Expected first.example blocked before reload")
	}

	writeList(t, dir, "domains.txt", "second.example")
	writeList(t, dir, "keywords.txt", "beta")
	domains, keywords := c.Reload()

	if domains != 1 || keywords != 1 {
		t.Errorf("Expected 1 domain and 1 keyword after reload, got %d/%d", domains, keywords)
	}
	if v := c.Classify("https://first.example/1", "", "", ""); v.Blocked {
		t.Error("Expected first.example unblocked after reload")
	}
	if v := c.Classify("https://second.example/1", "", "", ""); !v.Blocked {
		t.Error("Expected second.example blocked after reload")
	}
	if v := c.Classify("https://neutral.example/1", "beta test", "", ""); !v.Blocked {
		t.Error("Expected new keyword to block after reload")
	}
}

func TestMissingListFiles(t *testing.T) {
	cfg := &models.Config{}
	cfg.Policy.DomainsFile = "/nonexistent/domains.txt"
	cfg.Policy.KeywordsFile = "/nonexistent/keywords.txt"

	c := NewClassifier(cfg)
	verdict := c.Classify("https://anything.example/1", "anything", "", "")
	if verdict.Blocked {
		t.Error("Empty lists should never block")
	}
}
