package domain

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// Format is the container/audio format of the produced artifact.
type Format string

const (
	FormatMP4 Format = "mp4"
	FormatMP3 Format = "mp3"

	DefaultFormat = FormatMP4
)

// Quality caps the video height selected from the source.
type Quality string

const (
	Quality1080p Quality = "1080p"
	Quality720p  Quality = "720p"
	Quality480p  Quality = "480p"
	Quality360p  Quality = "360p"

	DefaultQuality = Quality720p
)

// Platform is a best-effort hint about where the source is hosted.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformOther     Platform = "other"
)

const maxSourceURLLength = 2048

// ParseFormat normalizes raw and applies the default for an empty value.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return DefaultFormat, nil
	case FormatMP4, FormatMP3:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// ParseQuality normalizes raw and applies the default for an empty value.
func ParseQuality(raw string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(raw)))
	switch q {
	case "":
		return DefaultQuality, nil
	case Quality1080p, Quality720p, Quality480p, Quality360p:
		return q, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedQuality, raw)
	}
}

// ParsePlatform accepts a known hint or falls back to detection from the URL.
func ParsePlatform(hint, sourceURL string) Platform {
	switch p := Platform(strings.ToLower(strings.TrimSpace(hint))); p {
	case PlatformYouTube, PlatformFacebook, PlatformInstagram, PlatformTikTok:
		return p
	}
	return DetectPlatform(sourceURL)
}

// DetectPlatform maps the URL host onto a known platform.
func DetectPlatform(sourceURL string) Platform {
	u, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil {
		return PlatformOther
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch {
	case hostMatches(host, "youtube.com", "youtu.be"):
		return PlatformYouTube
	case hostMatches(host, "facebook.com", "fb.watch"):
		return PlatformFacebook
	case hostMatches(host, "instagram.com"):
		return PlatformInstagram
	case hostMatches(host, "tiktok.com"):
		return PlatformTikTok
	default:
		return PlatformOther
	}
}

func hostMatches(host string, domains ...string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// ValidateSourceURL is the conservative shape filter applied before a
// locator reaches the external tool: absolute http(s) URL with a host, no
// whitespace or control characters, and nothing that could be read as a flag.
func ValidateSourceURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSource)
	}
	if len(raw) > maxSourceURLLength {
		return fmt.Errorf("%w: too long", ErrInvalidSource)
	}
	if strings.HasPrefix(raw, "-") {
		return fmt.Errorf("%w: leading dash", ErrInvalidSource)
	}
	for _, r := range raw {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: contains whitespace or control characters", ErrInvalidSource)
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidSource)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidSource)
	}
	if u.User != nil {
		return fmt.Errorf("%w: credentials are not allowed", ErrInvalidSource)
	}
	return nil
}
