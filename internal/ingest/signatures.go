package ingest

import (
	"embed"
	"fmt"
	"os"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

//go:embed signatures/bots.yml
//go:embed signatures/pii.yml
//go:embed signatures/clients.yml
var signatureFiles embed.FS

// BotSignature is one entry of the bot signature database.
type BotSignature struct {
	Regex    string `yaml:"regex"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

// PIIPattern is one entry of the PII detector set.
type PIIPattern struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

// ClientPattern is one entry of the client classification lists. Lists are
// ordered and the first matching pattern wins.
type ClientPattern struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

type botFile struct {
	Version    int            `yaml:"version"`
	Signatures []BotSignature `yaml:"signatures"`
}

type piiFile struct {
	Version  int          `yaml:"version"`
	Patterns []PIIPattern `yaml:"patterns"`
}

type clientFile struct {
	Version  int             `yaml:"version"`
	Devices  []ClientPattern `yaml:"devices"`
	Browsers []ClientPattern `yaml:"browsers"`
	OSes     []ClientPattern `yaml:"oses"`
}

// Compiled regex cache shared by both sets
type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *regexCache {
	return &regexCache{compiled: make(map[string]*pcre.Regexp)}
}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	// Double-check pattern
	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

// SignatureSet holds the loaded bot, PII and client pattern databases. It is
// built once at startup and injected into the Classifier; the data files are
// versioned configuration, not code.
type SignatureSet struct {
	bots      []BotSignature
	pii       []PIIPattern
	clients   clientFile
	botVer    int
	piiVer    int
	clientVer int
	regCache  *regexCache
}

// LoadSignatures reads the signature databases. Empty paths load the
// embedded defaults; non-empty paths override them from disk.
func LoadSignatures(botPath, piiPath, clientPath string) (*SignatureSet, error) {
	botRaw, err := readSignatureFile(botPath, "signatures/bots.yml")
	if err != nil {
		return nil, fmt.Errorf("failed to read bot signatures: %w", err)
	}
	piiRaw, err := readSignatureFile(piiPath, "signatures/pii.yml")
	if err != nil {
		return nil, fmt.Errorf("failed to read pii patterns: %w", err)
	}
	clientRaw, err := readSignatureFile(clientPath, "signatures/clients.yml")
	if err != nil {
		return nil, fmt.Errorf("failed to read client patterns: %w", err)
	}

	var bots botFile
	if err := yaml.Unmarshal(botRaw, &bots); err != nil {
		return nil, fmt.Errorf("failed to parse bot signatures: %w", err)
	}
	var pii piiFile
	if err := yaml.Unmarshal(piiRaw, &pii); err != nil {
		return nil, fmt.Errorf("failed to parse pii patterns: %w", err)
	}
	var clients clientFile
	if err := yaml.Unmarshal(clientRaw, &clients); err != nil {
		return nil, fmt.Errorf("failed to parse client patterns: %w", err)
	}

	set := &SignatureSet{
		bots:      bots.Signatures,
		pii:       pii.Patterns,
		clients:   clients,
		botVer:    bots.Version,
		piiVer:    pii.Version,
		clientVer: clients.Version,
		regCache:  newRegexCache(),
	}

	// Compile eagerly so a broken override fails at startup, not mid-ingest.
	for _, sig := range set.bots {
		if _, err := set.regCache.get(sig.Regex); err != nil {
			return nil, fmt.Errorf("invalid bot signature %q: %w", sig.Name, err)
		}
	}
	for _, pat := range set.pii {
		if _, err := set.regCache.get(pat.Regex); err != nil {
			return nil, fmt.Errorf("invalid pii pattern %q: %w", pat.Name, err)
		}
	}
	for _, list := range [][]ClientPattern{set.clients.Devices, set.clients.Browsers, set.clients.OSes} {
		for _, pat := range list {
			if _, err := set.regCache.get(pat.Regex); err != nil {
				return nil, fmt.Errorf("invalid client pattern %q: %w", pat.Name, err)
			}
		}
	}
	return set, nil
}

func readSignatureFile(override, embedded string) ([]byte, error) {
	if override != "" {
		return os.ReadFile(override)
	}
	return signatureFiles.ReadFile(embedded)
}

// MatchBot returns the matching signature name when the user agent belongs
// to a known bot, crawler, headless browser or AI fetcher.
func (s *SignatureSet) MatchBot(userAgent string) (string, bool) {
	for _, sig := range s.bots {
		regex, err := s.regCache.get(sig.Regex)
		if err != nil {
			continue
		}
		if regex.MatchString(userAgent) {
			return sig.Name, true
		}
	}
	return "", false
}

// MatchPII returns the name of the first PII detector that fires on text.
func (s *SignatureSet) MatchPII(text string) (string, bool) {
	for _, pat := range s.pii {
		regex, err := s.regCache.get(pat.Regex)
		if err != nil {
			continue
		}
		if regex.MatchString(text) {
			return pat.Name, true
		}
	}
	return "", false
}

// Versions returns the loaded data file versions, for the health endpoint.
func (s *SignatureSet) Versions() (bots, pii, clients int) {
	return s.botVer, s.piiVer, s.clientVer
}
