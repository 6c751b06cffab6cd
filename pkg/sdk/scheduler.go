package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/participant"
)

const (
	statusEndpoint       = "/status"
	modelEndpoint        = "/model"
	roundsEndpoint       = "/rounds"
	participantsEndpoint = "/participants"
)

func (sdk *fedSDK) Status() (coordinator.Status, error) {
	var s coordinator.Status
	if err := sdk.get(statusEndpoint, &s); err != nil {
		return coordinator.Status{}, err
	}

	return s, nil
}

func (sdk *fedSDK) Step() (fl.RoundReport, error) {
	body, err := sdk.processRequest(http.MethodPost, sdk.schedulerURL+roundsEndpoint, nil, http.StatusCreated)
	if err != nil {
		return fl.RoundReport{}, err
	}

	var r fl.RoundReport
	if err := json.Unmarshal(body, &r); err != nil {
		return fl.RoundReport{}, err
	}

	return r, nil
}

func (sdk *fedSDK) Round(round int) (fl.RoundReport, error) {
	var r fl.RoundReport
	if err := sdk.get(fmt.Sprintf("%s/%d", roundsEndpoint, round), &r); err != nil {
		return fl.RoundReport{}, err
	}

	return r, nil
}

func (sdk *fedSDK) Rounds(offset, limit uint64) (coordinator.RoundPage, error) {
	var p coordinator.RoundPage
	if err := sdk.get(roundsEndpoint+pageQuery(offset, limit), &p); err != nil {
		return coordinator.RoundPage{}, err
	}

	return p, nil
}

func (sdk *fedSDK) Participant(id string) (participant.Participant, error) {
	var p participant.Participant
	if err := sdk.get(participantsEndpoint+"/"+url.PathEscape(id), &p); err != nil {
		return participant.Participant{}, err
	}

	return p, nil
}

func (sdk *fedSDK) Participants(offset, limit uint64) (coordinator.ParticipantPage, error) {
	var p coordinator.ParticipantPage
	if err := sdk.get(participantsEndpoint+pageQuery(offset, limit), &p); err != nil {
		return coordinator.ParticipantPage{}, err
	}

	return p, nil
}

func (sdk *fedSDK) Model() (fl.Model, error) {
	var m fl.Model
	if err := sdk.get(modelEndpoint, &m); err != nil {
		return fl.Model{}, err
	}

	return m, nil
}
