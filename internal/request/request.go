package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusError is returned by CallWithClient when the server answers with a non-2xx status.
// Body holds the raw response so callers can decode provider-specific error envelopes.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, string(e.Body))
}

// ToJsonReq converts a Go object to a JSON-encoded HTTP request payload.
func ToJsonReq(payload interface{}) (*bytes.Buffer, error) {
	c, e := json.Marshal(payload)
	if e != nil {
		return nil, e
	}
	return bytes.NewBuffer(c), nil
}

// Call makes an HTTP request with the default client and decodes the JSON response into response.
func Call(req *http.Request, response interface{}) (*http.Response, error) {
	return CallWithClient(http.DefaultClient, req, response)
}

// CallWithClient sends req using client and decodes the JSON response body into response.
// Non-2xx responses are returned as *StatusError and are not decoded.
func CallWithClient(client *http.Client, req *http.Request, response interface{}) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return resp, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}

	if response == nil || len(body) == 0 {
		return resp, nil
	}

	err = json.Unmarshal(body, response)
	return resp, err
}

// BearerAuth formats token as an Authorization header value.
func BearerAuth(token string) string {
	return "Bearer " + token
}
