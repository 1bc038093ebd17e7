// Package urlresolve turns user supplied links into URLs a decoder can read
// directly.
package urlresolve

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	ErrInvalidURL         = errors.New("url must be an absolute http or https address")
	ErrPlatformRestricted = errors.New("platform does not allow direct video access")
)

// RestrictedError names the platform that refused direct access.
type RestrictedError struct {
	Platform string
	VideoID  string
}

func (e *RestrictedError) Error() string {
	if e.VideoID != "" {
		return fmt.Sprintf("%s video %s cannot be extracted directly; download it and upload the file", e.Platform, e.VideoID)
	}
	return fmt.Sprintf("%s videos cannot be extracted directly; use a direct file url", e.Platform)
}

func (e *RestrictedError) Unwrap() error { return ErrPlatformRestricted }

var (
	youTubeID = regexp.MustCompile(`(?:youtube\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?)/|.*[?&]v=)|youtu\.be/)([^"&?/\s]{11})`)
	driveID   = []*regexp.Regexp{
		regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`),
	}
	videoExtensions = []string{".mp4", ".webm", ".ogg", ".mov", ".avi", ".mkv", ".m4v"}
)

// Validate reports whether raw parses as an absolute http(s) URL.
func Validate(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ErrInvalidURL
	}
	return u, nil
}

// Resolve validates raw and rewrites share links for known hosts.
func Resolve(raw string) (string, error) {
	u, err := Validate(raw)
	if err != nil {
		return "", err
	}
	s := u.String()
	host := strings.ToLower(u.Hostname())

	switch {
	case onDomain(host, "dropbox.com"):
		return dropbox(s), nil
	case host == "drive.google.com":
		for _, re := range driveID {
			if m := re.FindStringSubmatch(s); m != nil {
				return "https://drive.google.com/uc?export=download&id=" + m[1], nil
			}
		}
		return s, nil
	case onDomain(host, "youtube.com") || host == "youtu.be":
		e := &RestrictedError{Platform: "youtube"}
		if m := youTubeID.FindStringSubmatch(s); m != nil {
			e.VideoID = m[1]
		}
		return "", e
	case onDomain(host, "vimeo.com"):
		return "", &RestrictedError{Platform: "vimeo"}
	}
	return s, nil
}

// onDomain reports whether host is domain or one of its subdomains.
func onDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func dropbox(s string) string {
	switch {
	case strings.Contains(s, "www.dropbox.com"):
		s = strings.Replace(s, "www.dropbox.com", "dl.dropboxusercontent.com", 1)
		s = strings.Replace(s, "?dl=0&", "?", 1)
		s = strings.Replace(s, "?dl=0", "", 1)
		return strings.Replace(s, "&dl=0", "", 1)
	case strings.Contains(s, "dl=0"):
		return strings.Replace(s, "dl=0", "raw=1", 1)
	case strings.Contains(s, "dl=1"), strings.Contains(s, "raw=1"):
		return s
	case strings.Contains(s, "?"):
		return s + "&raw=1"
	}
	return s + "?raw=1"
}

// IsDirectVideo reports whether the URL path ends in a known video extension.
// Links without one may still serve video, so callers treat it as a hint.
func IsDirectVideo(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, v := range videoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

// FileName is the last path segment of raw, or "video" when there is none.
func FileName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "video"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "video"
	}
	return name
}
