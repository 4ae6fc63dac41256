// Package mailns plans and applies mail-server namespace configuration:
// per-protocol internal and external virtual directory URLs computed from a
// namespace declaration.
package mailns

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/idna"

	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
)

// Protocol identifies a client access protocol with its own virtual directory.
type Protocol string

const (
	ProtocolOWA          Protocol = "owa"
	ProtocolECP          Protocol = "ecp"
	ProtocolEWS          Protocol = "ews"
	ProtocolActiveSync   Protocol = "activesync"
	ProtocolOAB          Protocol = "oab"
	ProtocolAutodiscover Protocol = "autodiscover"
	ProtocolMAPI         Protocol = "mapi"
)

// virtualDirectoryPaths maps each protocol to its well-known URL path.
var virtualDirectoryPaths = map[Protocol]string{
	ProtocolOWA:          "/owa",
	ProtocolECP:          "/ecp",
	ProtocolEWS:          "/EWS/Exchange.asmx",
	ProtocolActiveSync:   "/Microsoft-Server-ActiveSync",
	ProtocolOAB:          "/OAB",
	ProtocolAutodiscover: "/Autodiscover/Autodiscover.xml",
	ProtocolMAPI:         "/mapi",
}

// AllProtocols returns the supported protocols in stable order.
func AllProtocols() []Protocol {
	out := make([]Protocol, 0, len(virtualDirectoryPaths))
	for p := range virtualDirectoryPaths {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HostPair overrides the namespace hosts for a single protocol.
type HostPair struct {
	Internal string
	External string
}

// Namespace declares the hostnames a mail server answers on.
type Namespace struct {
	Name         string
	InternalHost string
	ExternalHost string
	SSL          bool
	Overrides    map[Protocol]HostPair
	Exclude      []Protocol
}

// Setting is one computed virtual directory URL pair.
type Setting struct {
	Protocol    Protocol `json:"protocol"`
	InternalURL string   `json:"internal_url"`
	ExternalURL string   `json:"external_url"`
}

// Plan computes per-protocol virtual directory settings for a namespace.
// Hostnames are normalized through IDNA so unicode hosts serialize correctly.
func Plan(ns Namespace) ([]Setting, error) {
	if ns.InternalHost == "" {
		return nil, errors.MailNSError("namespace has no internal host").
			WithContext("namespace", ns.Name).
			Build()
	}
	if ns.ExternalHost == "" {
		ns.ExternalHost = ns.InternalHost
	}

	excluded := make(map[Protocol]bool, len(ns.Exclude))
	for _, p := range ns.Exclude {
		excluded[p] = true
	}

	scheme := "https"
	if !ns.SSL {
		scheme = "http"
	}

	var settings []Setting
	for _, proto := range AllProtocols() {
		if excluded[proto] {
			continue
		}

		internal, external := ns.InternalHost, ns.ExternalHost
		if override, ok := ns.Overrides[proto]; ok {
			if override.Internal != "" {
				internal = override.Internal
			}
			if override.External != "" {
				external = override.External
			}
		}

		internalHost, err := normalizeHost(internal)
		if err != nil {
			return nil, errors.MailNSError("invalid internal host").
				WithCause(err).
				WithContext("namespace", ns.Name).
				WithContext("host", internal).
				Build()
		}
		externalHost, err := normalizeHost(external)
		if err != nil {
			return nil, errors.MailNSError("invalid external host").
				WithCause(err).
				WithContext("namespace", ns.Name).
				WithContext("host", external).
				Build()
		}

		vdirPath := virtualDirectoryPaths[proto]
		settings = append(settings, Setting{
			Protocol:    proto,
			InternalURL: fmt.Sprintf("%s://%s%s", scheme, internalHost, vdirPath),
			ExternalURL: fmt.Sprintf("%s://%s%s", scheme, externalHost, vdirPath),
		})
	}
	return settings, nil
}

// normalizeHost lowercases and IDNA-encodes a hostname.
func normalizeHost(host string) (string, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return "", fmt.Errorf("empty host")
	}
	return idna.Lookup.ToASCII(host)
}
