package util

import (
	"bytes"
	"fmt"
	"pcap-dns-rewriter/config"
	"strings"
)

type DomainMatcher interface {
	MatchDomain(domain string) bool
}

var AcceptAll = acceptAll{}

type acceptAll struct {
}

func (a acceptAll) MatchDomain(_ string) bool {
	return true
}

func (a acceptAll) String() string {
	return "AcceptAll"
}

// DomainSet is a label trie keyed from the TLD down. An empty subset marks
// a rule end, so every name below it matches.
type DomainSet map[string]DomainSet

func (set DomainSet) String() string {
	return fmt.Sprintf("DomainSet(%d)", len(set))
}

func (set DomainSet) MatchDomain(domain string) bool {
	return set.matchBytes([]byte(strings.ToLower(strings.TrimRight(domain, "."))))
}

func (set DomainSet) matchBytes(domain []byte) bool {
	index := bytes.LastIndexByte(domain, '.')
	if index == -1 {
		subSet, ok := set[string(domain)]
		return ok && len(subSet) == 0
	} else {
		subSet, exist := set[string(domain[index+1:])]
		return exist && (len(subSet) == 0 || subSet.matchBytes(domain[:index]))
	}
}

var _included = make(map[string]DomainSet, 0)

func (set DomainSet) addDomain(domain string) {
	index := strings.LastIndex(domain, ".")
	if index == -1 {
		set[domain] = _included
	} else {
		suffix := domain[index+1:]
		subSet, exist := set[suffix]
		if exist {
			if len(subSet) != 0 {
				subSet.addDomain(domain[:index])
			}
		} else {
			set[suffix] = newSubSet(domain[:index])
		}
	}
}

func newSubSet(domain string) DomainSet {
	set := make(DomainSet, 0)
	index := strings.LastIndex(domain, ".")
	if index == -1 {
		set[domain] = _included
	} else {
		set[domain[index+1:]] = newSubSet(domain[:index])
	}
	return set
}

func NewDomainSet(domains []string) DomainSet {
	set := make(DomainSet, 0)
	for _, domain := range domains {
		if domain != "" {
			set.addDomain(domain)
		}
	}
	return set
}

func NewDomainMatcher(rules []string) (DomainMatcher, error) {
	domains, err := config.ParseRule(rules)
	if err != nil {
		return nil, err
	}
	if len(domains) > 0 {
		return NewDomainSet(domains), nil
	} else {
		return AcceptAll, nil
	}
}
