package ingest

import "veilytics/internal/events"

// Client classification runs the ordered pattern lists from clients.yml over
// the user agent; the first match wins. The hash pipeline needs the raw UA,
// the rollups only need these coarse classes; bot traffic never gets here.

func (s *SignatureSet) matchClient(list []ClientPattern, userAgent string) (string, bool) {
	for _, pat := range list {
		regex, err := s.regCache.get(pat.Regex)
		if err != nil {
			continue
		}
		if regex.MatchString(userAgent) {
			return pat.Name, true
		}
	}
	return "", false
}

// ClassifyDevice returns tablet, mobile or desktop. An agent matching no
// device pattern is a desktop; an empty agent is unknown.
func (s *SignatureSet) ClassifyDevice(userAgent string) string {
	if userAgent == "" {
		return events.UnknownDevice
	}
	if name, found := s.matchClient(s.clients.Devices, userAgent); found {
		return name
	}
	return "desktop"
}

func (s *SignatureSet) ClassifyBrowser(userAgent string) string {
	if name, found := s.matchClient(s.clients.Browsers, userAgent); found {
		return name
	}
	return events.UnknownBrowser
}

func (s *SignatureSet) ClassifyOS(userAgent string) string {
	if name, found := s.matchClient(s.clients.OSes, userAgent); found {
		return name
	}
	return events.UnknownOS
}
