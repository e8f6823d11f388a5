package session

import (
	"encoding/json"
	"fmt"
	"os"
)

// Cookie is one entry of the cookie file: a JSON array of objects whose
// required fields are name and value. The optional fields are accepted so
// browser-exported cookie dumps work unmodified.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
}

// LoadCookies reads and validates a cookie file. A malformed entry (missing
// name or value) is a configuration error and is reported before any network
// activity takes place.
func LoadCookies(path string) ([]Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: read cookie file: %w", err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("session: parse cookie file %s: %w", path, err)
	}

	for i, c := range cookies {
		if c.Name == "" {
			return nil, fmt.Errorf("session: cookie file %s: entry %d is missing the name field", path, i)
		}
		if c.Value == "" {
			return nil, fmt.Errorf("session: cookie file %s: entry %d (%s) is missing the value field", path, i, c.Name)
		}
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("session: cookie file %s contains no cookies", path)
	}

	return cookies, nil
}
