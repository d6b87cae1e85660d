package resilios

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/vango-go/resilios/pkg/core"
)

// maxMascotBytes bounds a downloaded illustration.
const maxMascotBytes = 16 << 20

// MascotService lists and downloads avatar illustrations.
type MascotService struct {
	client *Client
}

// Mascot is one downloaded illustration.
type Mascot struct {
	ContentType string
	Data        []byte
}

// List returns the mascot file names in gateway order.
func (s *MascotService) List(ctx context.Context) ([]string, error) {
	var out struct {
		Count int      `json:"count"`
		Files []string `json:"files"`
	}
	if err := s.client.doJSON(ctx, http.MethodGet, "/mascots", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// Random downloads a random mascot.
func (s *MascotService) Random(ctx context.Context) (Mascot, error) {
	return s.download(ctx, "/mascot/random")
}

// Get downloads the mascot at index, as ordered by List.
func (s *MascotService) Get(ctx context.Context, index int) (Mascot, error) {
	if index < 0 {
		return Mascot{}, core.NewInvalidRequestErrorWithParam("index must be >= 0", "index")
	}
	return s.download(ctx, "/mascot/"+strconv.Itoa(index))
}

func (s *MascotService) download(ctx context.Context, path string) (Mascot, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	resp, endpoint, err := s.client.send(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return Mascot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Mascot{}, decodeErrorResponse(resp, endpoint, http.MethodGet)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMascotBytes))
	if err != nil {
		return Mascot{}, &TransportError{Op: http.MethodGet, URL: endpoint, Err: err}
	}
	return Mascot{ContentType: resp.Header.Get("Content-Type"), Data: data}, nil
}
