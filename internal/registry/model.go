package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Item is one business registration record.
type Item struct {
	BRNO flexString `json:"brno"` // business registration number
	CRNO flexString `json:"crno"` // corporate registration number
}

// Page is one decoded registry response.
type Page struct {
	PageNo     int
	TotalCount int
	Items      []Item
}

// envelope mirrors {response:{header:{...}, body:{totalCount, items}}}.
type envelope struct {
	Response struct {
		Header *struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body struct {
			TotalCount flexInt  `json:"totalCount"`
			Items      itemList `json:"items"`
		} `json:"body"`
	} `json:"response"`
}

// successCodes are the data.go.kr header codes that mean "OK".
var successCodes = map[string]bool{"": true, "00": true, "0": true, "INFO-000": true}

func decodePage(pageNo int, data []byte) (*Page, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if h := env.Response.Header; h != nil && !successCodes[h.ResultCode] {
		return nil, fmt.Errorf("registry result %s: %s", h.ResultCode, h.ResultMsg)
	}

	return &Page{
		PageNo:     pageNo,
		TotalCount: int(env.Response.Body.TotalCount),
		Items:      []Item(env.Response.Body.Items),
	}, nil
}

// itemList accepts the shapes the registry gateway has been seen to return:
// a bare array, {"item": [...]}, {"item": {...}}, "" or null.
type itemList []Item

func (l *itemList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)):
		*l = nil
		return nil

	case data[0] == '[':
		var items []Item
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil

	case data[0] == '{':
		var wrapper struct {
			Item json.RawMessage `json:"item"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return err
		}
		inner := bytes.TrimSpace(wrapper.Item)
		if len(inner) > 0 && inner[0] == '{' {
			var one Item
			if err := json.Unmarshal(inner, &one); err != nil {
				return err
			}
			*l = []Item{one}
			return nil
		}
		return l.UnmarshalJSON(inner)
	}

	return fmt.Errorf("items: unexpected JSON %.20q", data)
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		data = []byte(s)
	}
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("totalCount: %w", err)
	}
	*n = flexInt(v)
	return nil
}

// flexString accepts a JSON string, number or null.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(data)
	return nil
}

func (s flexString) String() string { return string(s) }
