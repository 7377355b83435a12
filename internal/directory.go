package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

var httpTimeout = 5 * time.Second

// DirectoryRoom is one live room as reported by the server, with the count
// of currently connected clients.
type DirectoryRoom struct {
	Name    string
	Clients int
}

// Directory is the HTTP client for the server's room listing and creation
// endpoints. The websocket URL is reused to derive the HTTP base, so the
// client needs a single address for both planes.
type Directory struct {
	baseURL string
}

func NewDirectory(serverURL string) (*Directory, error) {
	base, err := httpBaseFromSocketURL(serverURL)
	if err != nil {
		return nil, err
	}
	return &Directory{baseURL: base}, nil
}

type roomListResponse struct {
	Data map[string]struct {
		Clients map[string]json.RawMessage `json:"clients"`
	} `json:"data"`
}

// ListRooms fetches the live rooms, sorted by name.
func (d *Directory) ListRooms() ([]DirectoryRoom, error) {
	var resp roomListResponse
	if err := doJSONRequest(http.MethodGet, d.baseURL+"/socketio/api/rooms", nil, &resp); err != nil {
		return nil, err
	}
	rooms := make([]DirectoryRoom, 0, len(resp.Data))
	for name, room := range resp.Data {
		rooms = append(rooms, DirectoryRoom{Name: name, Clients: len(room.Clients)})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms, nil
}

// CreateRoom registers a room name with the server. Creating a room that
// already exists is not an error.
func (d *Directory) CreateRoom(name string) error {
	path := d.baseURL + "/socketio/chat/" + url.PathEscape(name)
	return doJSONRequest(http.MethodPost, path, nil, nil)
}

func doJSONRequest(method, endpoint string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(buf)
	}
	req, err := http.NewRequest(method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", UserAgent)
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, readResponseError(resp.Body))
	}
	if out != nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func readResponseError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"]; ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}

func httpBaseFromSocketURL(wsURL string) (string, error) {
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	case "http", "https":
		// already an HTTP base
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/"), nil
}
