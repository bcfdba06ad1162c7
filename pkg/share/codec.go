// Package share encodes a reduced investigation into a single URL query
// parameter and validates it on decode. Decoding never partially applies a
// payload: any violation yields nil.
package share

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/ritzau/bluecity/pkg/logging"
	"github.com/ritzau/bluecity/pkg/model"
)

// DefaultParam is the query parameter carrying the shared state
const DefaultParam = "inv"

// Payload is the part of an investigation that travels in a URL
type Payload struct {
	Name            string   `json:"name"`
	SelectedSources []string `json:"selectedSources,omitempty"`
	SelectedLayers  []string `json:"selectedLayers,omitempty"`
	Period          string   `json:"period,omitempty"`
}

// Codec builds and parses share URLs
type Codec struct {
	baseURL string
	param   string
}

// NewCodec creates a codec producing links under baseURL (origin + path)
func NewCodec(baseURL, param string) *Codec {
	if param == "" {
		param = DefaultParam
	}
	return &Codec{baseURL: baseURL, param: param}
}

// Param returns the query parameter name
func (c *Codec) Param() string {
	return c.param
}

// BaseURL returns the origin and path links are built on, without a query
func (c *Codec) BaseURL() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// Encode returns a link carrying the investigation's shareable subset.
// On failure it logs and returns the bare base URL.
func (c *Codec) Encode(inv model.Investigation, period string) string {
	base := c.BaseURL()

	data, err := json.Marshal(Payload{
		Name:            inv.Name,
		SelectedSources: inv.SelectedSources,
		SelectedLayers:  inv.SelectedLayers,
		Period:          period,
	})
	if err != nil {
		logging.Warn("failed to encode share payload", "investigation", inv.ID, "error", err)
		return base
	}

	u, err := url.Parse(base)
	if err != nil {
		logging.Warn("invalid share base URL", "url", c.baseURL, "error", err)
		return base
	}
	q := url.Values{}
	q.Set(c.param, base64.StdEncoding.EncodeToString(data))
	u.RawQuery = q.Encode()
	return u.String()
}

// Decode extracts and validates the shared payload from rawURL.
// A missing parameter returns nil silently; malformed tokens return nil and warn.
func (c *Codec) Decode(rawURL string) *Payload {
	u, err := url.Parse(rawURL)
	if err != nil {
		logging.Debug("unparseable location, nothing to import", "error", err)
		return nil
	}
	token := u.Query().Get(c.param)
	if token == "" {
		return nil
	}

	data, err := decodeBase64(token)
	if err != nil {
		logging.Warn("share token is not valid base64", "param", c.param, "error", err)
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logging.Warn("share token is not a JSON object", "param", c.param, "error", err)
		return nil
	}

	payload, reason := validate(raw)
	if payload == nil {
		logging.Warn("rejecting share token", "param", c.param, "reason", reason)
		return nil
	}
	return payload
}

// Strip removes the share parameter from rawURL, keeping everything else
func (c *Codec) Strip(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if !q.Has(c.param) {
		return rawURL
	}
	q.Del(c.param)
	u.RawQuery = q.Encode()
	return u.String()
}

// decodeBase64 accepts standard and URL-safe alphabets, padded or not.
// A '+' that went through form decoding arrives as a space.
func decodeBase64(token string) ([]byte, error) {
	token = strings.ReplaceAll(strings.TrimSpace(token), " ", "+")
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		data, err := enc.DecodeString(token)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func validate(raw map[string]json.RawMessage) (*Payload, string) {
	p := &Payload{}

	name, ok := raw["name"]
	if !ok {
		return nil, "missing name"
	}
	if err := json.Unmarshal(name, &p.Name); err != nil || isNull(name) {
		return nil, "name is not a string"
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, "name is empty"
	}

	if v, ok := raw["selectedSources"]; ok {
		if !decodeStrings(v, &p.SelectedSources) {
			return nil, "selectedSources is not an array of strings"
		}
	}
	if v, ok := raw["selectedLayers"]; ok {
		if !decodeStrings(v, &p.SelectedLayers) {
			return nil, "selectedLayers is not an array of strings"
		}
	}
	if v, ok := raw["period"]; ok {
		if isNull(v) || json.Unmarshal(v, &p.Period) != nil {
			return nil, "period is not a string"
		}
	}
	return p, ""
}

func decodeStrings(v json.RawMessage, out *[]string) bool {
	if isNull(v) {
		return false
	}
	var items []string
	if err := json.Unmarshal(v, &items); err != nil {
		return false
	}
	*out = items
	return true
}

func isNull(v json.RawMessage) bool {
	return strings.TrimSpace(string(v)) == "null"
}
