package siteurl

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidURL indicates that an input string cannot be reduced to a site identifier.
var ErrInvalidURL = errors.New("siteurl: invalid url")

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"

	defaultPortHTTP  = "80"
	defaultPortHTTPS = "443"
)

// schemePrefixPattern matches inputs that already carry a scheme, so bare
// hostnames get https:// prepended while ftp://-style inputs keep their
// scheme and fail the scheme check instead of being silently rewritten.
var schemePrefixPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)

// Normalize reduces a raw URL string to a canonical site identifier of the
// form scheme://host[:port]. The port is kept only when it is not the
// scheme's default. Path, query, and fragment are discarded. Normalize is a
// no-op over its own output.
func Normalize(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidURL)
	}

	candidate := trimmed
	if !schemePrefixPattern.MatchString(trimmed) {
		candidate = schemeHTTPS + "://" + trimmed
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != schemeHTTP && scheme != schemeHTTPS {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	identifier := scheme + "://" + bracketHost(host)
	if port := parsed.Port(); port != "" && port != defaultPort(scheme) {
		identifier += ":" + port
	}
	return identifier, nil
}

// DisplayName returns the host[:port] presentation form of a site
// identifier produced by Normalize. The input is returned unchanged when it
// does not parse, so callers always get something renderable.
func DisplayName(siteID string) string {
	parsed, err := url.Parse(siteID)
	if err != nil || parsed.Hostname() == "" {
		return siteID
	}
	name := bracketHost(parsed.Hostname())
	if port := parsed.Port(); port != "" && port != defaultPort(strings.ToLower(parsed.Scheme)) {
		name += ":" + port
	}
	return name
}

// bracketHost restores the brackets that url.Parse strips from IPv6 literals,
// keeping identifiers re-parseable.
func bracketHost(host string) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

func defaultPort(scheme string) string {
	if scheme == schemeHTTP {
		return defaultPortHTTP
	}
	return defaultPortHTTPS
}
