package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/participant"
)

const CTJSON string = "application/json"

var ErrUnexpectedResponse = errors.New("unexpected response")

type SDK interface {
	// Status gets the scheduler status.
	//
	// example:
	//  status, _ := sdk.Status()
	//  fmt.Println(status.Phase, status.Round)
	Status() (coordinator.Status, error)

	// Step executes a single round.
	//
	// example:
	//  report, _ := sdk.Step()
	//  fmt.Println(report.Round, report.Admitted)
	Step() (fl.RoundReport, error)

	// Round gets the report of an aggregated round.
	//
	// example:
	//  report, _ := sdk.Round(3)
	//  fmt.Println(report)
	Round(round int) (fl.RoundReport, error)

	// Rounds lists round reports.
	//
	// example:
	//  page, _ := sdk.Rounds(0, 10)
	//  fmt.Println(page)
	Rounds(offset, limit uint64) (coordinator.RoundPage, error)

	// Participant gets a participant by id.
	//
	// example:
	//  p, _ := sdk.Participant("client-3")
	//  fmt.Println(p.AdmissionCount)
	Participant(id string) (participant.Participant, error)

	// Participants lists participants.
	//
	// example:
	//  page, _ := sdk.Participants(0, 10)
	//  fmt.Println(page)
	Participants(offset, limit uint64) (coordinator.ParticipantPage, error)

	// Model gets the current global model.
	//
	// example:
	//  model, _ := sdk.Model()
	//  fmt.Println(model.Version)
	Model() (fl.Model, error)
}

type fedSDK struct {
	schedulerURL string
	client       *http.Client
}

type Config struct {
	SchedulerURL    string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &fedSDK{
		schedulerURL: strings.TrimSuffix(cfg.SchedulerURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

type errorRes struct {
	Error string `json:"error"`
}

func (sdk *fedSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e errorRes
		if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
			return []byte{}, fmt.Errorf("%w %d: %s", ErrUnexpectedResponse, resp.StatusCode, e.Error)
		}

		return []byte{}, fmt.Errorf("%w code: %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	return body, nil
}

func (sdk *fedSDK) get(path string, v any) error {
	body, err := sdk.processRequest(http.MethodGet, sdk.schedulerURL+path, nil, http.StatusOK)
	if err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}

func pageQuery(offset, limit uint64) string {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	if len(queries) == 0 {
		return ""
	}

	return "?" + strings.Join(queries, "&")
}
