// Reader is a testing facility to read the output of a http reporter.

package reporter

import (
	"io"
	"net/http"
	"net/url"
)

type HttpReader struct {
	serverIP   string // listen ip
	serverPort string // listen port
}

func NewHttpReader(serverIP string, serverPort string) *HttpReader {
	return &HttpReader{
		serverIP:   serverIP,
		serverPort: serverPort,
	}
}

func (hr *HttpReader) get(route string, query url.Values) (int, string, error) {
	u := "http://" + hr.serverIP + ":" + hr.serverPort + route
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	resp, err := http.Get(u)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	// Read the response body
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, string(body), nil
}

func (hr *HttpReader) GetHello() (string, error) {
	_, body, err := hr.get(ROUTE_HELLO, nil)
	return body, err
}

func (hr *HttpReader) GetProgress() (string, error) {
	_, body, err := hr.get(ROUTE_PROGRESS, nil)
	return body, err
}

func (hr *HttpReader) GetTransfer(nonce string) (int, string, error) {
	return hr.get(ROUTE_TRANSFER, url.Values{"nonce": {nonce}})
}
