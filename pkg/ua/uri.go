package ua

import (
	"strings"

	"github.com/emiago/sipgo/sip"
)

// uriKey identifies a buddy by the user and host parts of its URI. Port,
// transport parameter and display name are deliberately not part of the
// key: "sip:alice@example.com:5060;transport=tcp" and
// "sip:alice@example.com" address the same buddy.
type uriKey struct {
	user string
	host string
}

// buddyURIKey normalizes a SIP URI (optionally in name-addr form) into a
// registry key. Returns ok=false for strings sipgo cannot parse.
func buddyURIKey(uri string) (uriKey, bool) {
	s := strings.TrimSpace(uri)
	if i := strings.IndexByte(s, '<'); i >= 0 {
		if j := strings.IndexByte(s, '>'); j > i {
			s = s[i+1 : j]
		}
	}
	var parsed sip.Uri
	if err := sip.ParseUri(s, &parsed); err != nil {
		return uriKey{}, false
	}
	return uriKey{user: parsed.User, host: parsed.Host}, true
}
