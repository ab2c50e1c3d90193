// Package qrartifact wraps the external visual-code renderer. The artifact
// itself is opaque to the rest of the system; units only carry a ref to the
// saved file. Generation failures are recorded per unit and retried later,
// they never abort a batch.
package qrartifact

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

var ErrDisabled = errors.New("visual-code generation is disabled")

type Generator interface {
	// Generate renders the code for a unit's claim URL and returns a ref to
	// the stored artifact.
	Generate(unitID, claimURL string) (string, error)
}

// ClaimURL: the public URL printed into the code and the order manifest.
func ClaimURL(baseURL, slug string) string {
	return fmt.Sprintf("%s/u/%s", baseURL, slug)
}

// HTTPGenerator fetches the rendered code from an external service and
// saves it under savePath. Existing artifacts are not re-fetched.
type HTTPGenerator struct {
	renderURL string
	savePath  string
	client    *http.Client
}

func NewHTTPGenerator(renderURL, savePath string) *HTTPGenerator {
	return &HTTPGenerator{
		renderURL: renderURL,
		savePath:  savePath,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *HTTPGenerator) Generate(unitID, claimURL string) (string, error) {
	if g.renderURL == "" {
		return "", ErrDisabled
	}

	fileName := fmt.Sprintf("%s.png", unitID)
	filePath := filepath.Join(g.savePath, fileName)

	// already rendered on a previous run
	if _, err := os.Stat(filePath); err == nil {
		return filePath, nil
	}

	reqURL := fmt.Sprintf("%s?data=%s", g.renderURL, url.QueryEscape(claimURL))
	resp, err := g.client.Get(reqURL)
	if err != nil {
		return "", fmt.Errorf("render request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("render service returned %d", resp.StatusCode)
	}

	if err := os.MkdirAll(g.savePath, 0755); err != nil {
		return "", fmt.Errorf("could not create artifact dir: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("could not create artifact file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		return "", fmt.Errorf("could not write artifact: %w", err)
	}

	return filePath, nil
}
