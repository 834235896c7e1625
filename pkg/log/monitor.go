package log

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	timeout = 2 * time.Second
)

type Monitor struct {
	remote string
	client *http.Client
}

func NewMonitor(remote string) *Monitor {
	return &Monitor{
		remote: strings.TrimRight(remote, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (m *Monitor) Post(body []byte, path string) error {
	url := fmt.Sprintf("%s/%s", m.remote, path)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("collector status=%d", resp.StatusCode)
	}
	return nil
}
