package resolver

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"

	"github.com/OFFIS-RIT/lineage/pkg/common"
	"github.com/OFFIS-RIT/lineage/pkg/logger"
)

// Kind tells which variant of the resolver response was received.
type Kind string

const (
	KindFullTree    Kind = "full_tree"
	KindAncestors   Kind = "ancestors"
	KindDescendants Kind = "descendants"
	KindMessage     Kind = "message"
	KindUnknown     Kind = "unknown"
)

// Response is a decoded natural-language query result.
//
// Tree kinds carry Person and the lineage paths of the matching side(s);
// KindMessage carries Message. Raw always holds the (repaired) body so
// unknown payloads can be shown verbatim.
type Response struct {
	Kind        Kind
	Person      string
	Ancestors   []common.PersonPath
	Descendants []common.PersonPath
	Message     string
	Raw         json.RawMessage
}

// IsTree reports whether the response carries lineage paths to draw.
func (r *Response) IsTree() bool {
	switch r.Kind {
	case KindFullTree, KindAncestors, KindDescendants:
		return true
	}
	return false
}

// ParseResponse decodes a resolver body. Invalid JSON is repaired when
// possible. Malformed paths are dropped and malformed persons become zero
// Persons, so a partially broken payload still yields a usable tree.
func ParseResponse(body []byte) (*Response, error) {
	body, err := repair(body)
	if err != nil {
		return nil, err
	}

	root := gjson.ParseBytes(body)
	resp := &Response{Kind: KindUnknown, Raw: json.RawMessage(body)}
	if !root.IsObject() {
		return resp, nil
	}

	switch Kind(root.Get("type").String()) {
	case KindFullTree:
		resp.Kind = KindFullTree
		resp.Person = root.Get("person").String()
		resp.Ancestors = parsePaths(root.Get("ancestors"))
		resp.Descendants = parsePaths(root.Get("descendants"))
		return resp, nil
	case KindAncestors:
		resp.Kind = KindAncestors
		resp.Person = root.Get("person").String()
		resp.Ancestors = parsePaths(root.Get("data"))
		return resp, nil
	case KindDescendants:
		resp.Kind = KindDescendants
		resp.Person = root.Get("person").String()
		resp.Descendants = parsePaths(root.Get("data"))
		return resp, nil
	}

	if msg := root.Get("message"); msg.Exists() && msg.String() != "" {
		resp.Kind = KindMessage
		resp.Message = msg.String()
	}
	return resp, nil
}

func repair(body []byte) ([]byte, error) {
	if gjson.ValidBytes(body) {
		return body, nil
	}

	repaired, err := jsonrepair.JSONRepair(string(body))
	if err != nil {
		return nil, fmt.Errorf("decode resolver response: %w", err)
	}
	logger.Debug("Repaired malformed resolver response", "bytes", len(body))
	return []byte(repaired), nil
}

func parsePaths(v gjson.Result) []common.PersonPath {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	if !v.IsArray() {
		logger.Debug("Ignoring non-list lineage paths", "value", v.Raw)
		return nil
	}

	paths := make([]common.PersonPath, 0, len(v.Array()))
	for i, p := range v.Array() {
		if !p.IsArray() {
			logger.Debug("Skipping malformed lineage path", "index", i, "value", p.Raw)
			continue
		}
		entries := p.Array()
		path := make(common.PersonPath, 0, len(entries))
		for _, e := range entries {
			path = append(path, parsePerson(e))
		}
		paths = append(paths, path)
	}
	return paths
}

// parsePerson keeps the position of entries it cannot read by returning a
// zero Person.
func parsePerson(v gjson.Result) common.Person {
	if !v.IsObject() {
		return common.Person{}
	}
	name := v.Get("name")
	if name.Type != gjson.String {
		return common.Person{}
	}
	return common.Person{
		Name: name.String(),
		Sex:  common.ParseSex(v.Get("sex").String()),
	}
}
