// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"net"
	"regexp"
	"strconv"
	"strings"
)

var locationRe = regexp.MustCompile(`^(?P<host>[^:]*):(?P<port>[0-9]*)(/(?P<url>.*))?`)

// Location is a gateway endpoint announced by the server.
type Location struct {
	Host string
	Port int
	Path string
}

func (l Location) String() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// ParseLocation parses "host:port[/path]".
func ParseLocation(s string) (Location, error) {
	m := locationRe.FindStringSubmatch(s)
	if m == nil {
		return Location{}, newError(KindLocationParsing, "could not parse location %q", s)
	}
	host := m[locationRe.SubexpIndex("host")]
	portStr := m[locationRe.SubexpIndex("port")]
	if host == "" || portStr == "" {
		return Location{}, newError(KindLocationParsing, "location %q must have both host and port", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Location{}, wrapError(KindLocationParsing, err, "location %q has an invalid port", s)
	}
	return Location{Host: host, Port: port, Path: m[locationRe.SubexpIndex("url")]}, nil
}

func newRedirectError(location string) (*RedirectError, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	return &RedirectError{Location: location, Host: loc.Host, Port: loc.Port}, nil
}

// ParseOctaves parses the octave locations header, a list of
// "name,host:port" entries separated by ';'. Empty entries are ignored.
func ParseOctaves(s string) (map[string]Location, error) {
	out := make(map[string]Location)
	for _, entry := range strings.Split(s, ";") {
		if entry == "" {
			continue
		}
		name, loc, ok := strings.Cut(entry, ",")
		if !ok {
			return nil, newError(KindLocationParsing, "octave entry %q is missing a ','", entry)
		}
		if name == "" {
			return nil, newError(KindLocationParsing, "octave entry %q has no name", entry)
		}
		l, err := ParseLocation(loc)
		if err != nil {
			return nil, err
		}
		out[name] = l
	}
	return out, nil
}
